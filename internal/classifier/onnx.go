//go:build onnxruntime

package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig describes how to drive an exported classifier graph
type ONNXConfig struct {
	Path     string
	Input    string
	Output   string
	Features int
	Labels   []string
}

// ONNXModel runs a classifier exported to ONNX whose output is a
// (1, classes) probability tensor.
type ONNXModel struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	features     int
	labels       []string

	// The session is bound to a single pair of tensors.
	mu sync.Mutex
}

var (
	envMu       sync.Mutex
	libraryPath string
)

// ONNXAvailable reports whether the ONNX backend is compiled in
func ONNXAvailable() bool {
	return true
}

// SetONNXLibrary sets the onnxruntime shared library to load. It must be
// called before the first model is opened.
func SetONNXLibrary(path string) {
	envMu.Lock()
	defer envMu.Unlock()
	libraryPath = path
}

func ensureEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// ShutdownONNX releases the ONNX environment
func ShutdownONNX() {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// LoadONNX opens an ONNX classifier session
func LoadONNX(cfg ONNXConfig) (*ONNXModel, error) {
	if cfg.Features <= 0 {
		return nil, fmt.Errorf("onnx model %s: features must be positive", cfg.Path)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("onnx model %s: class labels are required", cfg.Path)
	}
	if err := ensureEnvironment(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Features)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(cfg.Labels))))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.Path,
		[]string{cfg.Input}, []string{cfg.Output},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", cfg.Path, err)
	}

	return &ONNXModel{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		features:     cfg.Features,
		labels:       cfg.Labels,
	}, nil
}

// InputDim implements Classifier
func (m *ONNXModel) InputDim() int {
	return m.features
}

// Classes implements Classifier
func (m *ONNXModel) Classes() []string {
	return m.labels
}

// Predict implements Classifier
func (m *ONNXModel) Predict(x []float64) (string, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return "", err
	}
	return m.labels[argmax(proba)], nil
}

// PredictProba implements ProbabilityEstimator
func (m *ONNXModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.features {
		return nil, fmt.Errorf("%w: model expects %d features, got %d", ErrDimension, m.features, len(x))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	in := m.inputTensor.GetData()
	for i, v := range x {
		in[i] = float32(v)
	}

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := m.outputTensor.GetData()
	proba := make([]float64, len(out))
	for i, v := range out {
		proba[i] = float64(v)
	}
	return proba, nil
}

// Close releases the session and its tensors
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}
