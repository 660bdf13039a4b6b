// Package classifier holds the runtime side of the offline-trained models:
// fitted feature scalers and the classifiers that consume their output.
package classifier

import "errors"

// Classifier maps a scaled feature vector to a class label.
type Classifier interface {
	// Predict returns the label of the most likely class for x.
	Predict(x []float64) (string, error)
	// InputDim is the feature vector length the classifier was trained on.
	InputDim() int
	// Classes lists the labels in the order the classifier scores them.
	Classes() []string
}

// ProbabilityEstimator is implemented by classifiers that can report a
// probability per class. Probabilities follow the order of Classes.
type ProbabilityEstimator interface {
	PredictProba(x []float64) ([]float64, error)
}

// ErrDimension is returned when a feature vector does not have the length
// a scaler or classifier expects.
var ErrDimension = errors.New("feature dimension mismatch")

// ErrONNXUnavailable is returned when an ONNX artifact is requested from a
// binary built without the onnxruntime tag
var ErrONNXUnavailable = errors.New("built without onnxruntime tag. Rebuild with: go build -tags onnxruntime")

// ClassProbability returns the probability c assigns to label for x.
// ok is false when c does not estimate probabilities.
func ClassProbability(c Classifier, x []float64, label string) (p float64, ok bool, err error) {
	est, ok := c.(ProbabilityEstimator)
	if !ok {
		return 0, false, nil
	}
	proba, err := est.PredictProba(x)
	if err != nil {
		return 0, true, err
	}
	for i, cls := range c.Classes() {
		if cls == label && i < len(proba) {
			return proba[i], true, nil
		}
	}
	return 0, true, nil
}

// argmax returns the index of the largest value, preferring the first on ties.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
