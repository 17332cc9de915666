// Package classifier runs one forward pass of a pretrained intent model
// over a feature matrix and resolves the best label into a command intent.
// Model backends follow the same mock/exec split as the capture recorder:
// the daemon talks to a real inference runner over stdio, tests inject a
// mock.
package classifier

import (
	"context"
	"errors"
)

// ErrInitialization reports a model or label asset that failed to load.
var ErrInitialization = errors.New("classifier initialization failed")

// ErrUnsupportedModel reports a model whose tensors are not float32.
var ErrUnsupportedModel = errors.New("unsupported model")

// ElementType identifies a tensor element type. Only Float32 is supported.
type ElementType string

const (
	Float32 ElementType = "float32"
	Float64 ElementType = "float64"
	Int8    ElementType = "int8"
	UInt8   ElementType = "uint8"
)

// Model is a loaded neural network. The handle is effectively immutable
// after construction; serialization of Invoke calls is the caller's
// responsibility (the single-flight capture session provides it).
type Model interface {
	// InputShape returns the declared input tensor shape, e.g. [1, 49, 13]
	// or [1, 49, 13, 1].
	InputShape() []int

	// OutputShape returns the declared output tensor shape, e.g. [1, 15].
	OutputShape() []int

	// ElementType returns the tensor element type.
	ElementType() ElementType

	// Invoke runs one forward pass over the flat row-major input and
	// returns the flat output scores.
	Invoke(ctx context.Context, input []float32) ([]float32, error)

	// Close releases the model handle. Idempotent.
	Close() error
}

func flatLen(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
