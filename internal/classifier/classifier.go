package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/loqalabs/loqa-intent/internal/intent"
	"github.com/loqalabs/loqa-intent/internal/mfcc"
)

// Result is one accepted classification. Score is the arg-max softmax
// probability and Group is a deterministic function of Label.
type Result struct {
	Label string          `json:"label"`
	Score float64         `json:"score"`
	Group intent.Category `json:"group"`
}

// Classifier wraps a loaded model and its label list. Safe for use by one
// in-flight inference at a time; the capture session serializes calls.
type Classifier struct {
	model      Model
	labels     []string
	threshold  float64
	frameCount int
	coeffCount int
	outputLen  int
	log        *slog.Logger
}

// New validates the model contract and derives the feature shape from the
// declared input tensor. Accepted input shapes are [1, F, C] and
// [1, F, C, 1]; the label list length must match the output width.
func New(model Model, labels []string, threshold float64, log *slog.Logger) (*Classifier, error) {
	if model.ElementType() != Float32 {
		return nil, fmt.Errorf("%w: element type %q, only float32 tensors are supported", ErrUnsupportedModel, model.ElementType())
	}

	frameCount, coeffCount, err := deriveFeatureShape(model.InputShape())
	if err != nil {
		return nil, err
	}

	outputLen := flatLen(model.OutputShape())
	if outputLen != len(labels) {
		return nil, fmt.Errorf("%w: model outputs %d classes but label list has %d entries", ErrInitialization, outputLen, len(labels))
	}

	return &Classifier{
		model:      model,
		labels:     labels,
		threshold:  threshold,
		frameCount: frameCount,
		coeffCount: coeffCount,
		outputLen:  outputLen,
		log:        log.With(slog.String("component", "classifier")),
	}, nil
}

func deriveFeatureShape(shape []int) (frames, coeffs int, err error) {
	switch {
	case len(shape) == 3 && shape[0] == 1:
		return shape[1], shape[2], nil
	case len(shape) == 4 && shape[0] == 1 && shape[3] == 1:
		return shape[1], shape[2], nil
	default:
		return 0, 0, fmt.Errorf("%w: input shape %v, expected [1, frames, coeffs] or [1, frames, coeffs, 1]", mfcc.ErrShapeMismatch, shape)
	}
}

// FrameCount returns the frame count declared by the model input shape.
func (c *Classifier) FrameCount() int { return c.frameCount }

// CoeffCount returns the per-frame coefficient count declared by the model.
func (c *Classifier) CoeffCount() int { return c.coeffCount }

// Classify runs one forward pass. It returns nil without error when the
// arg-max probability falls below the configured threshold: an ambiguous
// utterance is an expected outcome, not a fault.
func (c *Classifier) Classify(ctx context.Context, features mfcc.Matrix) (*Result, error) {
	expected := c.frameCount * c.coeffCount
	if len(features.Data) != expected {
		return nil, fmt.Errorf("%w: got %d feature values, model expects %d", mfcc.ErrShapeMismatch, len(features.Data), expected)
	}

	input := make([]float32, len(features.Data))
	for i, v := range features.Data {
		input[i] = float32(v)
	}

	scores, err := c.model.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("model invocation: %w", err)
	}
	if len(scores) != c.outputLen {
		return nil, fmt.Errorf("%w: model returned %d scores, declared output is %d", mfcc.ErrShapeMismatch, len(scores), c.outputLen)
	}

	probs := softmax(scores)
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	if probs[best] < c.threshold {
		c.log.Debug("classification below threshold",
			slog.String("label", c.labels[best]),
			slog.Float64("score", probs[best]),
			slog.Float64("threshold", c.threshold))
		return nil, nil
	}

	label := c.labels[best]
	return &Result{
		Label: label,
		Score: probs[best],
		Group: intent.Map(label),
	}, nil
}

// Close releases the underlying model handle.
func (c *Classifier) Close() error {
	return c.model.Close()
}

// softmax normalizes raw scores into probabilities with max subtraction
// for numerical stability. A zero exponent sum yields a zero vector rather
// than dividing by zero.
func softmax(scores []float32) []float64 {
	probs := make([]float64, len(scores))
	if len(scores) == 0 {
		return probs
	}

	max := float64(scores[0])
	for _, s := range scores[1:] {
		if float64(s) > max {
			max = float64(s)
		}
	}
	if math.IsInf(max, -1) {
		return probs
	}

	sum := 0.0
	for i, s := range scores {
		probs[i] = math.Exp(float64(s) - max)
		sum += probs[i]
	}
	if sum == 0 {
		for i := range probs {
			probs[i] = 0
		}
		return probs
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
