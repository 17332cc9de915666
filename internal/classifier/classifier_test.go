package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-intent/internal/intent"
	"github.com/loqalabs/loqa-intent/internal/mfcc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// logitsFor builds raw scores whose softmax equals the given distribution.
func logitsFor(probs []float64) []float32 {
	out := make([]float32, len(probs))
	for i, p := range probs {
		out[i] = float32(math.Log(p))
	}
	return out
}

func featuresOf(frames, coeffs int) mfcc.Matrix {
	return mfcc.Matrix{Data: make([]float64, frames*coeffs), Frames: frames, Coeffs: coeffs}
}

func TestNewDerivesShapeFromModel(t *testing.T) {
	for _, shape := range [][]int{{1, 49, 13}, {1, 49, 13, 1}} {
		model := NewMockModel(shape, []int{1, 3}, nil)
		c, err := New(model, []string{"a", "b", "c"}, 0.6, testLogger())
		if err != nil {
			t.Fatalf("shape %v: %v", shape, err)
		}
		if c.FrameCount() != 49 || c.CoeffCount() != 13 {
			t.Fatalf("shape %v: derived %dx%d, want 49x13", shape, c.FrameCount(), c.CoeffCount())
		}
	}
}

func TestNewRejectsBadShapeAndType(t *testing.T) {
	model := NewMockModel([]int{49, 13}, []int{1, 3}, nil)
	if _, err := New(model, []string{"a", "b", "c"}, 0.6, testLogger()); !errors.Is(err, mfcc.ErrShapeMismatch) {
		t.Fatalf("rank-2 input: expected ErrShapeMismatch, got %v", err)
	}

	model = NewMockModel([]int{1, 49, 13}, []int{1, 3}, nil)
	model.Element = UInt8
	if _, err := New(model, []string{"a", "b", "c"}, 0.6, testLogger()); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("uint8 tensors: expected ErrUnsupportedModel, got %v", err)
	}

	model = NewMockModel([]int{1, 49, 13}, []int{1, 3}, nil)
	if _, err := New(model, []string{"a", "b"}, 0.6, testLogger()); !errors.Is(err, ErrInitialization) {
		t.Fatalf("label mismatch: expected ErrInitialization, got %v", err)
	}
}

func TestClassifyRejectsShortFeatureVector(t *testing.T) {
	model := NewMockModel([]int{1, 49, 13}, []int{1, 3}, logitsFor([]float64{0.8, 0.1, 0.1}))
	c, err := New(model, []string{"a", "b", "c"}, 0.6, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	short := mfcc.Matrix{Data: make([]float64, 49*13-1)}
	if _, err := c.Classify(context.Background(), short); !errors.Is(err, mfcc.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if model.Invocations() != 0 {
		t.Fatal("model must not run on a malformed feature vector")
	}
}

func TestClassifyRejectsWrongOutputWidth(t *testing.T) {
	model := NewMockModel([]int{1, 49, 13}, []int{1, 3}, []float32{1, 2})
	c, err := New(model, []string{"a", "b", "c"}, 0.6, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Classify(context.Background(), featuresOf(49, 13)); !errors.Is(err, mfcc.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestClassifyBelowThresholdReturnsNil(t *testing.T) {
	model := NewMockModel([]int{1, 49, 13}, []int{1, 3}, logitsFor([]float64{0.4, 0.35, 0.25}))
	c, err := New(model, []string{"a", "b", "c"}, 0.6, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := c.Classify(context.Background(), featuresOf(49, 13))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result below threshold, got %+v", result)
	}
}

func TestClassifyAcceptsAboveThreshold(t *testing.T) {
	labels := []string{"activar_lector", "leer_texto", "abrir_menu"}
	model := NewMockModel([]int{1, 49, 13}, []int{1, 3}, logitsFor([]float64{0.95, 0.03, 0.02}))
	c, err := New(model, labels, 0.6, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	result, err := c.Classify(context.Background(), featuresOf(49, 13))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if result.Label != "activar_lector" {
		t.Fatalf("label = %q, want activar_lector", result.Label)
	}
	if math.Abs(result.Score-0.95) > 1e-6 {
		t.Fatalf("score = %v, want 0.95", result.Score)
	}
	if result.Group != intent.SignReader {
		t.Fatalf("group = %v, want %v", result.Group, intent.SignReader)
	}
}

func TestSoftmaxStability(t *testing.T) {
	// Large raw scores must not overflow thanks to max subtraction.
	probs := softmax([]float32{1000, 999, 998})
	sum := 0.0
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("unstable softmax output: %v", probs)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	if probs[0] <= probs[1] || probs[1] <= probs[2] {
		t.Fatalf("ordering lost: %v", probs)
	}
}

func TestSoftmaxDegenerateZeroSum(t *testing.T) {
	// All -Inf scores produce zero exponents; the result must be a zero
	// vector, not NaN from a zero division.
	inf := float32(math.Inf(-1))
	probs := softmax([]float32{inf, inf})
	for i, p := range probs {
		if p != 0 {
			t.Fatalf("probs[%d] = %v, want 0", i, p)
		}
	}
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("activar_lector\nleer_texto\n\nabrir_menu\n"), 0o644); err != nil {
		t.Fatalf("write labels: %v", err)
	}
	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"activar_lector", "leer_texto", "abrir_menu"}
	if len(labels) != len(want) {
		t.Fatalf("got %d labels, want %d", len(labels), len(want))
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("label %d = %q, want %q", i, labels[i], want[i])
		}
	}
}

func TestLoadLabelsMissingFile(t *testing.T) {
	if _, err := LoadLabels(filepath.Join(t.TempDir(), "absent.txt")); !errors.Is(err, ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
}
