package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// Scaler is a fitted standardisation transform: (x - mean) / scale per
// feature. It is the JSON export of a scikit-learn StandardScaler
// (mean_ and scale_).
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadScaler reads a scaler from a JSON file
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scaler %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scaler %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scaler) validate() error {
	if len(s.Mean) == 0 {
		return fmt.Errorf("empty mean vector")
	}
	if len(s.Scale) != len(s.Mean) {
		return fmt.Errorf("mean has %d values but scale has %d", len(s.Mean), len(s.Scale))
	}
	return nil
}

// Dim returns the number of features the scaler was fitted on
func (s *Scaler) Dim() int {
	return len(s.Mean)
}

// Transform returns a scaled copy of x. A zero scale is treated as 1,
// matching how constant features are handled at fit time.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", ErrDimension, len(s.Mean), len(x))
	}

	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// Save writes the scaler as JSON
func (s *Scaler) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
