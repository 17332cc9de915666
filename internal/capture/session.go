package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-intent/internal/classifier"
)

// ErrLowConfidence reports a clip that classified below the probability
// threshold. It is an expected outcome of an ambiguous utterance: callers
// should prompt for a retry, not log a failure.
var ErrLowConfidence = errors.New("no command recognized above threshold")

// State is the capture session lifecycle state.
type State int

const (
	Idle State = iota
	Listening
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pipeline turns a finished recording into a classification result. A nil
// result with nil error means the clip fell below the confidence
// threshold.
type Pipeline interface {
	Recognize(ctx context.Context, wavPath string) (*classifier.Result, error)
}

// Callbacks receive the outcome of one capture. The session owns exactly
// one pending set at a time and clears it atomically on every terminal
// transition, so callbacks from a cancelled session never fire.
type Callbacks struct {
	OnResult func(classifier.Result)
	OnError  func(error)
	OnStatus func(listening bool)
}

// Session drives the capture state machine Idle → Listening → Processing →
// Idle, with cancellation reachable from Listening and Processing. At most
// one capture is active: starting over an active session cancels it first.
// All exported methods are safe for concurrent use.
type Session struct {
	rec      Recorder
	pipeline Pipeline
	log      *slog.Logger

	defaultTimeout time.Duration
	tempDir        string

	mu        sync.Mutex
	state     State
	gen       uint64
	timer     *time.Timer
	callbacks *Callbacks
	tempPath  string
	disposed  bool
	wg        sync.WaitGroup
}

// NewSession wires a session to its recorder and recognition pipeline.
// defaultTimeout bounds a capture when Start is given no explicit timeout;
// tempDir defaults to the OS temp directory.
func NewSession(rec Recorder, pipeline Pipeline, defaultTimeout time.Duration, tempDir string, log *slog.Logger) *Session {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Session{
		rec:            rec,
		pipeline:       pipeline,
		log:            log.With(slog.String("component", "capture")),
		defaultTimeout: defaultTimeout,
		tempDir:        tempDir,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a capture. If a session is already listening or processing
// it is cancelled first (its callbacks are suppressed). Failures surface
// through cb.OnError, never as a return value: permission denial and
// recorder faults are runtime conditions the caller handles uniformly.
func (s *Session) Start(ctx context.Context, timeout time.Duration, cb Callbacks) {
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		invokeError(cb, fmt.Errorf("capture session is disposed"))
		return
	}
	if s.state != Idle {
		s.cancelLocked(true)
	}

	s.gen++
	gen := s.gen
	path := filepath.Join(s.tempDir, fmt.Sprintf("capture_%s.wav", uuid.NewString()))

	if err := s.rec.Start(ctx, path); err != nil {
		s.state = Idle
		s.mu.Unlock()
		if errors.Is(err, ErrPermissionDenied) {
			s.log.Warn("capture start refused", slog.String("error", err.Error()))
		} else {
			s.log.Error("recorder start failed", slog.String("error", err.Error()))
		}
		invokeError(cb, err)
		return
	}

	s.state = Listening
	s.tempPath = path
	s.callbacks = &cb
	s.timer = time.AfterFunc(timeout, func() { s.autoStop(gen) })
	s.mu.Unlock()

	s.log.Debug("capture started", slog.Duration("timeout", timeout))
	if cb.OnStatus != nil {
		cb.OnStatus(true)
	}
}

// autoStop is the timer path into Stop. The generation check discards
// timers from sessions that were cancelled or replaced.
func (s *Session) autoStop(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Listening {
		s.mu.Unlock()
		return
	}
	s.stopLocked(context.Background())
}

// Stop finishes the recording and runs the recognition pipeline. A no-op
// unless the session is listening.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != Listening {
		s.mu.Unlock()
		return
	}
	s.stopLocked(ctx)
}

// stopLocked is entered with the mutex held and releases it.
func (s *Session) stopLocked(ctx context.Context) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	gen := s.gen
	path := s.tempPath
	cb := s.callbacks
	s.state = Processing

	recorded, recErr := s.rec.Stop()
	s.mu.Unlock()

	if cb != nil && cb.OnStatus != nil {
		cb.OnStatus(false)
	}

	s.wg.Add(1)
	go s.process(ctx, gen, path, recorded, recErr)
}

// process runs decode → features → classify → map on its own goroutine so
// the caller's flow is never blocked by inference. The temp file is
// removed on every exit path.
func (s *Session) process(ctx context.Context, gen uint64, tempPath, recorded string, recErr error) {
	defer s.wg.Done()
	defer removeIfPresent(tempPath)

	var (
		result *classifier.Result
		err    error
	)
	switch {
	case recErr != nil:
		err = fmt.Errorf("stop recording: %w", recErr)
	case recorded == "":
		err = ErrNoAudio
	default:
		result, err = s.pipeline.Recognize(ctx, recorded)
		if err == nil && result == nil {
			err = ErrLowConfidence
		}
	}

	// Deliver under the generation check: a cancel or takeover during
	// Processing already cleared the callbacks and this outcome is void.
	s.mu.Lock()
	if s.gen != gen || s.callbacks == nil {
		s.mu.Unlock()
		return
	}
	cb := s.callbacks
	s.callbacks = nil
	s.state = Idle
	s.tempPath = ""
	s.mu.Unlock()

	if err != nil {
		s.logOutcome(err)
		invokeError(*cb, err)
		return
	}
	s.log.Info("intent recognized",
		slog.String("label", result.Label),
		slog.String("group", string(result.Group)),
		slog.Float64("score", result.Score))
	if cb.OnResult != nil {
		cb.OnResult(*result)
	}
}

// logOutcome separates developer-facing defects from expected runtime
// conditions: shape and asset mismatches are bugs, a quiet or ambiguous
// clip is not.
func (s *Session) logOutcome(err error) {
	switch {
	case errors.Is(err, ErrLowConfidence):
		s.log.Debug("classification below threshold")
	case errors.Is(err, ErrNoAudio):
		s.log.Debug("recorder produced no audio")
	default:
		s.log.Error("recognition pipeline failed", slog.String("error", err.Error()))
	}
}

// Cancel aborts the capture without running the pipeline. Pending
// callbacks are cleared; only OnStatus(false) fires.
func (s *Session) Cancel() {
	s.mu.Lock()
	cb := s.cancelLocked(false)
	s.mu.Unlock()
	if cb != nil && cb.OnStatus != nil {
		cb.OnStatus(false)
	}
}

// cancelLocked tears down the active capture and returns the displaced
// callbacks. On a takeover the displaced session's status callback fires
// here, before the new capture reports listening; otherwise the caller
// delivers it outside the lock.
func (s *Session) cancelLocked(takeover bool) *Callbacks {
	if s.state == Idle {
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.rec.Cancel()
	removeIfPresent(s.tempPath)
	s.tempPath = ""

	cb := s.callbacks
	s.callbacks = nil
	s.state = Idle
	s.gen++

	if takeover && cb != nil && cb.OnStatus != nil {
		// Deliver the terminal status for the displaced session before
		// the new one reports listening.
		cb.OnStatus(false)
		return nil
	}
	return cb
}

// Dispose cancels any active capture and releases the recorder.
// Idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	cb := s.cancelLocked(false)
	s.disposed = true
	s.mu.Unlock()

	if cb != nil && cb.OnStatus != nil {
		cb.OnStatus(false)
	}
	if err := s.rec.Close(); err != nil {
		s.log.Warn("recorder close failed", slog.String("error", err.Error()))
	}
}

// Wait blocks until any in-flight processing goroutine finishes. Intended
// for orderly shutdown and tests.
func (s *Session) Wait() {
	s.wg.Wait()
}

func invokeError(cb Callbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func removeIfPresent(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove temp recording", slog.String("path", path), slog.String("error", err.Error()))
	}
}
