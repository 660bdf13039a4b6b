package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LinearModel is a multinomial logistic regression exported as JSON
// (classes_, coef_ and intercept_ of the fitted estimator). It needs no
// native runtime, so it is the default artifact format.
type LinearModel struct {
	Labels    []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

// LoadLinear reads a linear model from a JSON file
func LoadLinear(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse linear model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid linear model %s: %w", path, err)
	}
	return &m, nil
}

func (m *LinearModel) validate() error {
	if len(m.Labels) < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", len(m.Labels))
	}

	// Binary models carry a single decision row for the positive class.
	rows := len(m.Labels)
	if rows == 2 && len(m.Coef) == 1 {
		rows = 1
	}
	if len(m.Coef) != rows {
		return fmt.Errorf("expected %d coefficient rows, got %d", rows, len(m.Coef))
	}
	if len(m.Intercept) != rows {
		return fmt.Errorf("expected %d intercepts, got %d", rows, len(m.Intercept))
	}
	dim := len(m.Coef[0])
	if dim == 0 {
		return fmt.Errorf("empty coefficient row")
	}
	for i, row := range m.Coef {
		if len(row) != dim {
			return fmt.Errorf("coefficient row %d has %d values, expected %d", i, len(row), dim)
		}
	}
	return nil
}

// InputDim implements Classifier
func (m *LinearModel) InputDim() int {
	return len(m.Coef[0])
}

// Classes implements Classifier
func (m *LinearModel) Classes() []string {
	return m.Labels
}

// Predict implements Classifier
func (m *LinearModel) Predict(x []float64) (string, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return "", err
	}
	return m.Labels[argmax(proba)], nil
}

// PredictProba implements ProbabilityEstimator
func (m *LinearModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.InputDim() {
		return nil, fmt.Errorf("%w: model expects %d features, got %d", ErrDimension, m.InputDim(), len(x))
	}

	scores := make([]float64, len(m.Coef))
	for i, row := range m.Coef {
		s := m.Intercept[i]
		for j, w := range row {
			s += w * x[j]
		}
		scores[i] = s
	}

	if len(scores) == 1 {
		p := 1 / (1 + math.Exp(-scores[0]))
		return []float64{1 - p, p}, nil
	}
	return softmax(scores), nil
}

// Save writes the model as JSON
func (m *LinearModel) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func softmax(scores []float64) []float64 {
	maxScore := scores[argmax(scores)]
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
