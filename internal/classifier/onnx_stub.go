//go:build !onnxruntime

package classifier

import "fmt"

// Stub implementation when onnxruntime is not available.
// Build with -tags onnxruntime to enable the real implementation.

// ONNXConfig describes how to drive an exported classifier graph
type ONNXConfig struct {
	Path     string
	Input    string
	Output   string
	Features int
	Labels   []string
}

// ONNXModel is a stub when built without the onnxruntime tag
type ONNXModel struct{}

// ONNXAvailable reports whether the ONNX backend is compiled in
func ONNXAvailable() bool {
	return false
}

// SetONNXLibrary is a no-op
func SetONNXLibrary(_ string) {}

// ShutdownONNX is a no-op
func ShutdownONNX() {}

// LoadONNX always fails without onnxruntime
func LoadONNX(cfg ONNXConfig) (*ONNXModel, error) {
	return nil, fmt.Errorf("onnx model %s: %w", cfg.Path, ErrONNXUnavailable)
}

// InputDim returns 0
func (m *ONNXModel) InputDim() int { return 0 }

// Classes returns nil
func (m *ONNXModel) Classes() []string { return nil }

// Predict is unavailable without onnxruntime
func (m *ONNXModel) Predict(_ []float64) (string, error) {
	return "", ErrONNXUnavailable
}

// PredictProba is unavailable without onnxruntime
func (m *ONNXModel) PredictProba(_ []float64) ([]float64, error) {
	return nil, ErrONNXUnavailable
}

// Close is a no-op
func (m *ONNXModel) Close() error { return nil }
