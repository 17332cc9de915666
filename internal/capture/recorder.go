// Package capture owns the microphone capture lifecycle: a single-flight
// session state machine that records a short clip to a scoped temp file,
// auto-stops on a timer, and hands the finished clip to the recognition
// pipeline.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-intent/internal/config"
)

// ErrPermissionDenied reports refused microphone access.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrNoAudio reports that the recorder produced no usable file.
var ErrNoAudio = errors.New("no audio captured")

// Recorder is the opaque capture capability. Start begins recording to
// path, Stop finishes and returns the recorded file path ("" when nothing
// was captured), Cancel aborts without producing a file.
type Recorder interface {
	Start(ctx context.Context, path string) error
	Stop() (string, error)
	Cancel()
	Close() error
}

// execRecorder drives an external capture command (arecord-style): the
// command records to the given path until it receives an interrupt.
type execRecorder struct {
	cmd        []string
	sampleRate int

	mu     sync.Mutex
	proc   *exec.Cmd
	path   string
	stderr *bytes.Buffer
	closed bool
}

// NewExecRecorder builds a Recorder around an external capture command.
func NewExecRecorder(cfg config.CaptureConfig, sampleRate int) (Recorder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &execRecorder{cmd: args, sampleRate: sampleRate}, nil
}

func (r *execRecorder) Start(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if r.proc != nil {
		return fmt.Errorf("recording already in progress")
	}

	args := append(append([]string{}, r.cmd[1:]...),
		"--output", path,
		"--rate", strconv.Itoa(r.sampleRate),
		"--channels", "1",
	)
	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Start(); err != nil {
		return fmt.Errorf("start capture command: %w", err)
	}
	r.proc = command
	r.path = path
	r.stderr = &stderr
	return nil
}

func (r *execRecorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return "", nil
	}

	_ = r.proc.Process.Signal(os.Interrupt)
	err := r.proc.Wait()
	path := r.path
	stderr := r.stderr
	r.proc, r.path, r.stderr = nil, "", nil

	// A capture command interrupted mid-stream exits nonzero; only treat
	// it as a failure when no file was written.
	if info, statErr := os.Stat(path); statErr != nil || info.Size() == 0 {
		if err != nil {
			return "", fmt.Errorf("capture command failed: %w: %s", err, stderr.String())
		}
		return "", nil
	}
	return path, nil
}

func (r *execRecorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return
	}
	_ = r.proc.Process.Kill()
	_ = r.proc.Wait()
	r.proc, r.path, r.stderr = nil, "", nil
}

func (r *execRecorder) Close() error {
	r.Cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
