package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/kartoza/cropwise/internal/api"
	"github.com/kartoza/cropwise/internal/classifier"
	"github.com/kartoza/cropwise/internal/config"
	"github.com/kartoza/cropwise/internal/inference"
	"github.com/kartoza/cropwise/internal/metrics"
	"github.com/kartoza/cropwise/internal/modelstore"
	"github.com/kartoza/cropwise/internal/predlog"
)

// Server holds all the components for the web application
type Server struct {
	cfg         config.Config
	httpServer  *http.Server
	router      *mux.Router
	handler     http.Handler
	models      *modelstore.Store
	predictions *predlog.Log
	metrics     *metrics.Metrics
}

// New creates a new Server with all components initialized. It fails when
// the crop model cannot be loaded; everything else degrades with a warning.
func New(cfg config.Config) (*Server, error) {
	classifier.SetONNXLibrary(cfg.ONNXLibrary)

	models, err := modelstore.Load(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		models:  models,
		metrics: metrics.New(),
	}

	// Initialize prediction log
	if cfg.LogEnabled() {
		predictions, err := predlog.Open(cfg.DBPath)
		if err != nil {
			log.Printf("Warning: prediction log not available: %v", err)
		} else {
			s.predictions = predictions
			log.Printf("Logging predictions to %s", predictions.Path())
		}
	} else {
		log.Printf("Prediction log disabled")
	}

	// Set up routes
	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all HTTP routes and the middleware chain
func (s *Server) setupRoutes() {
	var logger inference.PredictionLogger
	if s.predictions != nil {
		logger = countingLogger{next: s.predictions, metrics: s.metrics}
	}
	svc := inference.NewService(s.models.Crop(), s.models.Digit(), logger)

	apiHandler := api.NewHandler(svc, s.metrics, s.cfg)
	apiHandler.RegisterRoutes(s.router)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// Crop pictures collected next to the models
	if _, err := os.Stat(s.cfg.ImagesDir); err != nil {
		log.Printf("Warning: crop images directory not available: %v", err)
	}
	s.router.PathPrefix("/images/").Handler(
		http.StripPrefix("/images/", http.FileServer(http.Dir(s.cfg.ImagesDir)))).Methods("GET")

	s.router.Use(s.observe)

	// CORS and recovery wrap the router so preflight requests and
	// unmatched routes get them too.
	s.handler = recoverPanics(requestID(cors(s.router)))
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server listening on http://localhost:%d", s.cfg.Port)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Close model runtimes
	if closeErr := s.models.Close(); closeErr != nil {
		log.Printf("Error closing models: %v", closeErr)
	}

	return err
}

// countingLogger counts prediction log failures before handing them back
type countingLogger struct {
	next    inference.PredictionLogger
	metrics *metrics.Metrics
}

func (c countingLogger) Record(ctx context.Context, row predlog.Row) error {
	err := c.next.Record(ctx, row)
	if err != nil {
		c.metrics.LogFailure()
	}
	return err
}
