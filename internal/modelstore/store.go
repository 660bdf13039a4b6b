// Package modelstore loads the (classifier, scaler) pairs produced by the
// offline training process. Pairs are loaded once at start-up and are
// read-only afterwards.
package modelstore

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kartoza/cropwise/internal/classifier"
)

// Task names
const (
	TaskCrop  = "crop"
	TaskDigit = "digit"
)

// Artifact formats
const (
	FormatLinear = "linear"
	FormatONNX   = "onnx"
)

// Feature counts each task's pair must agree on
var taskFeatures = map[string]int{
	TaskCrop:  7,
	TaskDigit: 28 * 28,
}

// Manifest describes the artifacts of one task. It lives next to them as
// <task>.yaml in the models directory.
type Manifest struct {
	Format     string   `yaml:"format"`
	Classifier string   `yaml:"classifier"`
	Scaler     string   `yaml:"scaler"`
	Classes    []string `yaml:"classes,omitempty"`
	Input      string   `yaml:"input,omitempty"`
	Output     string   `yaml:"output,omitempty"`
}

// Pair is a classifier with the scaler fitted alongside it
type Pair struct {
	Task       string
	Classifier classifier.Classifier
	Scaler     *classifier.Scaler
}

// NewPair builds a pair, checking that classifier and scaler agree on the
// task's feature count
func NewPair(task string, c classifier.Classifier, s *classifier.Scaler) (*Pair, error) {
	if c == nil || s == nil {
		return nil, fmt.Errorf("%s: classifier and scaler are both required", task)
	}
	if s.Dim() != c.InputDim() {
		return nil, fmt.Errorf("%s: scaler has %d features but classifier expects %d", task, s.Dim(), c.InputDim())
	}
	if want, ok := taskFeatures[task]; ok && s.Dim() != want {
		return nil, fmt.Errorf("%s: expected %d features, artifacts have %d", task, want, s.Dim())
	}
	return &Pair{Task: task, Classifier: c, Scaler: s}, nil
}

// Store holds the loaded pairs
type Store struct {
	crop  *Pair
	digit *Pair
}

// New wraps already-built pairs. digit may be nil.
func New(crop, digit *Pair) *Store {
	return &Store{crop: crop, digit: digit}
}

// Load reads the crop pair (required) and the digit pair (optional) from dir
func Load(dir string) (*Store, error) {
	crop, err := LoadPair(dir, TaskCrop)
	if err != nil {
		return nil, fmt.Errorf("failed to load crop model: %w", err)
	}
	log.Printf("Loaded %s model (%d classes)", TaskCrop, len(crop.Classifier.Classes()))

	digit, err := LoadPair(dir, TaskDigit)
	if err != nil {
		log.Printf("Warning: digit model not available, /mnist/check disabled: %v", err)
		digit = nil
	} else {
		log.Printf("Loaded %s model (%d classes)", TaskDigit, len(digit.Classifier.Classes()))
	}

	return New(crop, digit), nil
}

// LoadPair reads <dir>/<task>.yaml and the artifacts it names
func LoadPair(dir, task string) (*Pair, error) {
	manifest, err := ReadManifest(filepath.Join(dir, task+".yaml"))
	if err != nil {
		return nil, err
	}

	scaler, err := classifier.LoadScaler(filepath.Join(dir, manifest.Scaler))
	if err != nil {
		return nil, fmt.Errorf("failed to load scaler: %w", err)
	}

	clf, err := loadClassifier(dir, task, manifest)
	if err != nil {
		return nil, err
	}

	pair, err := NewPair(task, clf, scaler)
	if err != nil {
		closeClassifier(clf)
		return nil, err
	}
	return pair, nil
}

// ReadManifest parses a task manifest
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Format == "" {
		m.Format = FormatLinear
	}
	if m.Classifier == "" || m.Scaler == "" {
		return nil, fmt.Errorf("manifest %s: classifier and scaler are required", path)
	}
	return &m, nil
}

func loadClassifier(dir, task string, m *Manifest) (classifier.Classifier, error) {
	path := filepath.Join(dir, m.Classifier)

	switch m.Format {
	case FormatLinear:
		clf, err := classifier.LoadLinear(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load classifier: %w", err)
		}
		return clf, nil
	case FormatONNX:
		input, output := m.Input, m.Output
		if input == "" {
			input = "float_input"
		}
		if output == "" {
			output = "probabilities"
		}
		clf, err := classifier.LoadONNX(classifier.ONNXConfig{
			Path:     path,
			Input:    input,
			Output:   output,
			Features: taskFeatures[task],
			Labels:   m.Classes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load classifier: %w", err)
		}
		return clf, nil
	default:
		return nil, fmt.Errorf("unknown model format %q", m.Format)
	}
}

// Crop returns the crop pair
func (s *Store) Crop() *Pair {
	return s.crop
}

// Digit returns the digit pair, or nil when it was not loaded
func (s *Store) Digit() *Pair {
	return s.digit
}

// Close releases any runtime resources held by the classifiers
func (s *Store) Close() error {
	var errs []error
	for _, p := range []*Pair{s.crop, s.digit} {
		if p == nil {
			continue
		}
		if err := closeClassifier(p.Classifier); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Task, err))
		}
	}
	classifier.ShutdownONNX()
	return errors.Join(errs...)
}

func closeClassifier(c classifier.Classifier) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
