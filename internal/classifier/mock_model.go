package classifier

import "context"

// MockModel is an in-memory Model for tests and development mode. It
// returns a fixed score vector regardless of input.
type MockModel struct {
	Input   []int
	Output  []int
	Element ElementType
	Scores  []float32
	// Err, when set, is returned by Invoke.
	Err error

	invocations int
}

// NewMockModel returns a mock with the given shapes, float32 tensors and
// the provided raw output scores.
func NewMockModel(input, output []int, scores []float32) *MockModel {
	return &MockModel{Input: input, Output: output, Element: Float32, Scores: scores}
}

func (m *MockModel) InputShape() []int        { return m.Input }
func (m *MockModel) OutputShape() []int       { return m.Output }
func (m *MockModel) ElementType() ElementType { return m.Element }

func (m *MockModel) Invoke(_ context.Context, _ []float32) ([]float32, error) {
	m.invocations++
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]float32(nil), m.Scores...), nil
}

func (m *MockModel) Close() error { return nil }

// Invocations reports how many forward passes ran.
func (m *MockModel) Invocations() int { return m.invocations }
