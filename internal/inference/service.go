// Package inference implements the two prediction operations served over
// HTTP: crop recommendation and the hand-drawn digit check.
package inference

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kartoza/cropwise/internal/classifier"
	"github.com/kartoza/cropwise/internal/imaging"
	"github.com/kartoza/cropwise/internal/modelstore"
	"github.com/kartoza/cropwise/internal/predlog"
)

// PredictionLogger records crop predictions
type PredictionLogger interface {
	Record(ctx context.Context, row predlog.Row) error
}

// Service runs predictions against loaded model pairs. It holds no mutable
// state and is safe for concurrent use.
type Service struct {
	crop  *modelstore.Pair
	digit *modelstore.Pair
	log   PredictionLogger
}

// NewService creates a service. digit and predictions may be nil.
func NewService(crop, digit *modelstore.Pair, predictions PredictionLogger) *Service {
	return &Service{
		crop:  crop,
		digit: digit,
		log:   predictions,
	}
}

// CropAvailable reports whether crop recommendations can be served
func (s *Service) CropAvailable() bool {
	return s.crop != nil
}

// DigitAvailable reports whether digit checks can be served
func (s *Service) DigitAvailable() bool {
	return s.digit != nil
}

// CropClasses returns the labels the crop model can recommend
func (s *Service) CropClasses() []string {
	if s.crop == nil {
		return nil
	}
	return s.crop.Classifier.Classes()
}

// RecommendCrop predicts the crop best suited to the given features. The
// prediction is logged on a best-effort basis: a failed write is reported
// to the operator log and does not affect the result.
func (s *Service) RecommendCrop(ctx context.Context, features CropFeatures, name string) (pred CropPrediction, err error) {
	if s.crop == nil {
		return CropPrediction{}, &Error{Kind: KindUnavailable, Message: "crop model not loaded"}
	}

	pred, err = s.classifyCrop(features)
	if err != nil {
		return CropPrediction{}, err
	}

	s.record(ctx, predlog.Row{
		N:           features.N,
		P:           features.P,
		K:           features.K,
		Humidity:    features.Humidity,
		Rainfall:    features.Rainfall,
		Temperature: features.Temperature,
		Crop:        pred.Crop,
		PH:          features.PH,
		Name:        name,
	})

	return pred, nil
}

func (s *Service) classifyCrop(features CropFeatures) (pred CropPrediction, err error) {
	defer recoverInternal(&err)

	label, err := predict(s.crop, features.Vector())
	if err != nil {
		return CropPrediction{}, err
	}
	return CropPrediction{Crop: capitalize(label)}, nil
}

// record writes row to the prediction log. Errors and panics from the
// logger are reported and dropped.
func (s *Service) record(ctx context.Context, row predlog.Row) {
	if s.log == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: prediction log write panicked: %v", r)
		}
	}()

	if err := s.log.Record(ctx, row); err != nil {
		log.Printf("Warning: prediction log write failed: %v", err)
	}
}

// CheckDigit classifies a drawing and decides whether it passes as the
// requested digit.
func (s *Service) CheckDigit(ctx context.Context, req DigitRequest) (res DigitCheckResult, err error) {
	if s.digit == nil {
		return DigitCheckResult{}, &Error{Kind: KindUnavailable, Message: "MNIST model not loaded"}
	}
	if strings.TrimSpace(req.Image) == "" {
		return DigitCheckResult{}, clientError("missing image")
	}
	if req.TargetDigit == nil {
		return DigitCheckResult{}, clientError("missing target_digit")
	}
	target := *req.TargetDigit
	if target < 0 || target > 9 {
		return DigitCheckResult{}, clientError("target_digit must be between 0 and 9, got %d", target)
	}
	threshold := DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return DigitCheckResult{}, clientError("threshold must be between 0 and 1, got %g", threshold)
	}
	invert := DefaultInvert
	if req.Invert != nil {
		invert = *req.Invert
	}
	defer recoverInternal(&err)

	img, err := imaging.Preprocess(req.Image, invert)
	if err != nil {
		return DigitCheckResult{}, &Error{Kind: KindClientInput, Message: "invalid image", Err: err}
	}

	x, err := s.digit.Scaler.Transform(imaging.Features(img))
	if err != nil {
		return DigitCheckResult{}, internalError("failed to scale features", err)
	}
	label, err := s.digit.Classifier.Predict(x)
	if err != nil {
		return DigitCheckResult{}, internalError("prediction failed", err)
	}
	digit, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return DigitCheckResult{}, internalError(fmt.Sprintf("digit model returned non-numeric class %q", label), err)
	}

	prob, ok, err := classifier.ClassProbability(s.digit.Classifier, x, label)
	if err != nil {
		return DigitCheckResult{}, internalError("probability estimate failed", err)
	}
	if !ok {
		prob = 0
		if digit == target {
			prob = 1
		}
	}

	return DigitCheckResult{
		Pred:   digit,
		Prob:   prob,
		Target: target,
		Passed: Passed(digit, target, prob, threshold),
	}, nil
}

// Passed is the digit check acceptance rule. An exact match always passes;
// so does any prediction whose probability reaches the threshold, even
// when it names a different digit.
// TODO: confirm with the front-end owners whether the threshold branch
// should also require pred == target.
func Passed(pred, target int, prob, threshold float64) bool {
	return pred == target || prob >= threshold
}

func predict(p *modelstore.Pair, raw []float64) (string, error) {
	x, err := p.Scaler.Transform(raw)
	if err != nil {
		return "", internalError("failed to scale features", err)
	}
	label, err := p.Classifier.Predict(x)
	if err != nil {
		return "", internalError("prediction failed", err)
	}
	return label, nil
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func recoverInternal(err *error) {
	if r := recover(); r != nil {
		*err = internalError("unexpected failure", fmt.Errorf("panic: %v", r))
	}
}
