package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kartoza/cropwise/internal/config"
	"github.com/kartoza/cropwise/internal/httputil"
	"github.com/kartoza/cropwise/internal/inference"
	"github.com/kartoza/cropwise/internal/metrics"
)

// maxBodyBytes bounds request bodies; a 28x28 PNG data URL is a few KB but
// canvases can be posted at full size.
const maxBodyBytes = 10 << 20

// Handler provides HTTP API endpoints
type Handler struct {
	svc     *inference.Service
	metrics *metrics.Metrics
	cfg     config.Config
}

// NewHandler creates a new API handler. m may be nil.
func NewHandler(svc *inference.Service, m *metrics.Metrics, cfg config.Config) *Handler {
	return &Handler{
		svc:     svc,
		metrics: m,
		cfg:     cfg,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	// Predictions
	r.HandleFunc("/predict", h.handlePredict).Methods("POST")
	r.HandleFunc("/mnist/check", h.handleDigitCheck).Methods("POST")
}

type cropResponse struct {
	Prediction string `json:"prediction"`
	Status     string `json:"status"`
}

type digitCheckRequest struct {
	Image       string   `json:"image"`
	TargetDigit *int     `json:"target_digit"`
	Threshold   *float64 `json:"threshold"`
	Invert      *bool    `json:"invert"`
}

type digitCheckResponse struct {
	Status string  `json:"status"`
	Passed bool    `json:"passed"`
	Pred   int     `json:"pred"`
	Prob   float64 `json:"prob"`
	Target int     `json:"target"`
}

// statusFor maps an inference error kind to an HTTP status code
func statusFor(kind inference.Kind) int {
	switch kind {
	case inference.KindClientInput:
		return http.StatusBadRequest
	case inference.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure logs and sends an inference error
func (h *Handler) respondFailure(w http.ResponseWriter, task string, err error) {
	kind := inference.KindOf(err)
	h.metrics.ObservePrediction(task, kind.String())
	if kind == inference.KindInternal {
		log.Printf("Error: %s prediction failed: %v", task, err)
	}
	httputil.RespondError(w, statusFor(kind), err.Error())
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"version":      h.cfg.Version,
		"crop_loaded":  h.svc != nil && h.svc.CropAvailable(),
		"digit_loaded": h.svc != nil && h.svc.DigitAvailable(),
		"log_enabled":  h.cfg.LogEnabled(),
		"crop_classes": []string{},
	}
	if h.svc != nil && h.svc.CropClasses() != nil {
		info["crop_classes"] = h.svc.CropClasses()
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// handlePredict recommends a crop for the posted soil and climate values
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		h.respondFailure(w, "crop", &inference.Error{Kind: inference.KindUnavailable, Message: "crop model not loaded"})
		return
	}

	var body map[string]interface{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		h.respondFailure(w, "crop", &inference.Error{Kind: inference.KindClientInput, Message: "request body must be a JSON object"})
		return
	}

	features, err := inference.ParseCropFeatures(body)
	if err != nil {
		h.respondFailure(w, "crop", err)
		return
	}

	var name string
	switch v := body["name"].(type) {
	case nil:
	case string:
		name = v
	default:
		name = fmt.Sprint(v)
	}

	pred, err := h.svc.RecommendCrop(r.Context(), features, name)
	if err != nil {
		h.respondFailure(w, "crop", err)
		return
	}

	h.metrics.ObservePrediction("crop", "success")
	httputil.RespondJSON(w, http.StatusOK, cropResponse{
		Prediction: pred.Crop,
		Status:     "success",
	})
}

// handleDigitCheck classifies a drawn digit and reports whether it passes
func (h *Handler) handleDigitCheck(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil || !h.svc.DigitAvailable() {
		h.respondFailure(w, "digit", &inference.Error{Kind: inference.KindUnavailable, Message: "MNIST model not loaded"})
		return
	}

	var req digitCheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondFailure(w, "digit", &inference.Error{Kind: inference.KindClientInput, Message: "invalid request body", Err: err})
		return
	}

	res, err := h.svc.CheckDigit(r.Context(), inference.DigitRequest{
		Image:       req.Image,
		TargetDigit: req.TargetDigit,
		Threshold:   req.Threshold,
		Invert:      req.Invert,
	})
	if err != nil {
		h.respondFailure(w, "digit", err)
		return
	}

	h.metrics.ObservePrediction("digit", "success")
	httputil.RespondJSON(w, http.StatusOK, digitCheckResponse{
		Status: "success",
		Passed: res.Passed,
		Pred:   res.Pred,
		Prob:   res.Prob,
		Target: res.Target,
	})
}
