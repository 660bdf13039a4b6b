package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port        int    `yaml:"port"`
	ModelsDir   string `yaml:"models_dir"`
	DBPath      string `yaml:"db_path"`
	ImagesDir   string `yaml:"images_dir"`
	ONNXLibrary string `yaml:"onnx_library"`
	Version     string `yaml:"-"`
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		Port:      5000,
		ModelsDir: "./models",
		DBPath:    "./predictions.db",
		ImagesDir: "./images_flat",
	}
}

// Environment variables read by ApplyEnv
const (
	EnvPort        = "CROPWISE_PORT"
	EnvModelsDir   = "CROPWISE_MODELS_DIR"
	EnvDBPath      = "CROPWISE_DB"
	EnvImagesDir   = "CROPWISE_IMAGES_DIR"
	EnvONNXLibrary = "CROPWISE_ONNX_LIBRARY"
)

// LoadSettings starts from Default, overlays the YAML settings file at path
// (skipped when path is empty) and then the environment
func LoadSettings(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v, ok := lookup(EnvModelsDir); ok && v != "" {
		c.ModelsDir = v
	}
	// An explicitly empty CROPWISE_DB disables the prediction log.
	if v, ok := lookup(EnvDBPath); ok {
		c.DBPath = v
	}
	if v, ok := lookup(EnvImagesDir); ok && v != "" {
		c.ImagesDir = v
	}
	if v, ok := lookup(EnvONNXLibrary); ok && v != "" {
		c.ONNXLibrary = v
	}
	return nil
}

// LogEnabled reports whether predictions are written to the log
func (c Config) LogEnabled() bool {
	return c.DBPath != ""
}
