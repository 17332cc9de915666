package capture

import (
	"context"
	"sync"

	"github.com/loqalabs/loqa-intent/internal/wave"
)

// MockRecorder is an in-memory Recorder for tests and development mode.
// Stop writes the configured samples to the session's temp path as a WAV
// file.
type MockRecorder struct {
	// Samples is the PCM content delivered on Stop, as normalized floats.
	Samples []float64
	// SampleRate defaults to 16000 when zero.
	SampleRate int
	// DenyPermission makes Start fail with ErrPermissionDenied.
	DenyPermission bool
	// ProduceNothing makes Stop report no captured file.
	ProduceNothing bool

	mu        sync.Mutex
	recording bool
	path      string
	starts    int
	cancels   int
	closed    bool
}

func (m *MockRecorder) Start(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DenyPermission {
		return ErrPermissionDenied
	}
	m.recording = true
	m.path = path
	m.starts++
	return nil
}

func (m *MockRecorder) Stop() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return "", nil
	}
	m.recording = false
	if m.ProduceNothing {
		return "", nil
	}

	rate := m.SampleRate
	if rate == 0 {
		rate = 16000
	}
	if err := wave.WritePCM16(m.path, wave.FloatsToPCM16(m.Samples), rate); err != nil {
		return "", err
	}
	return m.path, nil
}

func (m *MockRecorder) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = false
	m.cancels++
}

func (m *MockRecorder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Starts reports how many recordings began.
func (m *MockRecorder) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Cancels reports how many recordings were aborted.
func (m *MockRecorder) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Closed reports whether the recorder was released.
func (m *MockRecorder) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
