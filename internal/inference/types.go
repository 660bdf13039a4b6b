package inference

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CropFeatures are the soil and climate measurements a crop is recommended
// from
type CropFeatures struct {
	N           float64
	P           float64
	K           float64
	Temperature float64
	Humidity    float64
	PH          float64
	Rainfall    float64
}

// cropFields lists the request keys in the order the crop model expects
var cropFields = []string{"N", "P", "K", "temperature", "humidity", "ph", "rainfall"}

// Vector returns the features in model order
func (f CropFeatures) Vector() []float64 {
	return []float64{f.N, f.P, f.K, f.Temperature, f.Humidity, f.PH, f.Rainfall}
}

// ParseCropFeatures extracts the seven features from a decoded JSON body.
// Values may be numbers or numeric strings.
func ParseCropFeatures(body map[string]interface{}) (CropFeatures, error) {
	values := make([]float64, len(cropFields))
	for i, field := range cropFields {
		raw, ok := body[field]
		if !ok || raw == nil {
			return CropFeatures{}, clientError("missing required field: %s", field)
		}
		v, ok := toFloat(raw)
		if !ok {
			return CropFeatures{}, clientError("field %s must be numeric, got %v", field, raw)
		}
		values[i] = v
	}

	return CropFeatures{
		N:           values[0],
		P:           values[1],
		K:           values[2],
		Temperature: values[3],
		Humidity:    values[4],
		PH:          values[5],
		Rainfall:    values[6],
	}, nil
}

func toFloat(v interface{}) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CropPrediction is the recommended crop label, capitalised for display
type CropPrediction struct {
	Crop string
}

// DigitRequest asks whether a drawing shows TargetDigit. Nil fields were
// absent from the request.
type DigitRequest struct {
	Image       string
	TargetDigit *int
	Threshold   *float64
	Invert      *bool
}

// Defaults applied to a DigitRequest
const (
	DefaultThreshold = 0.20
	DefaultInvert    = true
)

// DigitCheckResult is the outcome of a digit check
type DigitCheckResult struct {
	Pred   int
	Prob   float64
	Target int
	Passed bool
}
