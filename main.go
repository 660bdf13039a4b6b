package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kartoza/cropwise/internal/config"
	"github.com/kartoza/cropwise/internal/server"
)

var version = "dev"

func main() {
	// Parse command-line flags
	settingsPath := flag.String("config", "", "YAML settings file")
	port := flag.Int("port", 0, "HTTP server port (default 5000)")
	modelsDir := flag.String("models-dir", "", "Directory containing crop.yaml, digit.yaml and their artifacts")
	dbPath := flag.String("db", "", "SQLite prediction log file")
	noLog := flag.Bool("no-log", false, "Disable the prediction log")
	imagesDir := flag.String("images-dir", "", "Directory of crop images served under /images/")
	onnxLibrary := flag.String("onnx-library", "", "Path to the onnxruntime shared library")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Cropwise v%s\n", version)
		os.Exit(0)
	}

	// Resolve configuration:
	// 1. Explicit flags take priority
	// 2. Then environment variables
	// 3. Then the settings file, then built-in defaults
	cfg, err := config.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *noLog {
		cfg.DBPath = ""
	}
	if *imagesDir != "" {
		cfg.ImagesDir = *imagesDir
	}
	if *onnxLibrary != "" {
		cfg.ONNXLibrary = *onnxLibrary
	}
	cfg.Version = version

	// Find an available port (try up to 10 ports starting from the requested one)
	availablePort, err := findAvailablePort(cfg.Port, 10)
	if err != nil {
		log.Fatalf("Failed to find available port: %v", err)
	}
	if availablePort != cfg.Port {
		log.Printf("Port %d in use, using port %d instead", cfg.Port, availablePort)
	}
	cfg.Port = availablePort

	log.Printf("Cropwise v%s starting on port %d", version, cfg.Port)
	log.Printf("Models directory: %s", cfg.ModelsDir)

	// Create and start the server
	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received %v signal, shutting down...", sig)
		if err := srv.Stop(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}
}

// findAvailablePort finds an available port, starting from the given port.
// If the port is in use, it tries subsequent ports up to maxAttempts times.
func findAvailablePort(startPort int, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		addr := fmt.Sprintf(":%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found after %d attempts starting from %d", maxAttempts, startPort)
}
