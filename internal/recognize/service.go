package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-intent/internal/bus"
	"github.com/loqalabs/loqa-intent/internal/capture"
	"github.com/loqalabs/loqa-intent/internal/classifier"
	"github.com/loqalabs/loqa-intent/internal/config"
	"github.com/loqalabs/loqa-intent/internal/eventstore"
	"github.com/loqalabs/loqa-intent/internal/protocol"
)

// Service exposes the capture session over the bus: it consumes capture
// commands and broadcasts status transitions and recognition outcomes.
// It owns the session and disposes it on Close.
type Service struct {
	cfg     config.CaptureConfig
	bus     *bus.Client
	session *capture.Session
	store   *eventstore.Store
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription

	mu      sync.Mutex
	current string
	ready   bool
}

func NewService(parent context.Context, cfg config.CaptureConfig, busClient *bus.Client, session *capture.Session, store *eventstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		session: session,
		store:   store,
		log:     log.With(slog.String("component", "intent-service")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Service) Start() error {
	subjects := []struct {
		subject string
		handle  func(protocol.CaptureCommand)
	}{
		{protocol.SubjectCaptureStart, s.handleStart},
		{protocol.SubjectCaptureStop, s.handleStop},
		{protocol.SubjectCaptureCancel, s.handleCancel},
	}
	for _, entry := range subjects {
		sub, err := bus.SubscribeJSON(s.bus, entry.subject, entry.handle)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", entry.subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.session.Dispose()
	s.session.Wait()
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) handleStart(cmd protocol.CaptureCommand) {
	sessionID := cmd.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	s.current = sessionID
	s.mu.Unlock()

	s.appendSession(sessionID)
	s.appendEvent(eventstore.Event{SessionID: sessionID, Type: eventstore.EventCaptureStarted})

	timeout := time.Duration(cmd.TimeoutMS) * time.Millisecond
	s.session.Start(s.ctx, timeout, capture.Callbacks{
		OnStatus: func(listening bool) { s.publishStatus(sessionID, listening) },
		OnResult: func(r classifier.Result) { s.publishResult(sessionID, r) },
		OnError:  func(err error) { s.publishError(sessionID, err) },
	})
}

func (s *Service) publishResult(sessionID string, r classifier.Result) {
	msg := protocol.IntentResult{
		SessionID: sessionID,
		Label:     r.Label,
		Group:     string(r.Group),
		Score:     r.Score,
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectIntentResult, msg); err != nil {
		s.log.Warn("failed to publish intent result", slog.String("error", err.Error()))
	}
	s.appendEvent(eventstore.Event{
		SessionID: sessionID,
		Type:      eventstore.EventIntentAccepted,
		Label:     r.Label,
		Group:     string(r.Group),
		Score:     r.Score,
	})
}

func (s *Service) publishError(sessionID string, cause error) {
	code := errorCode(cause)
	msg := protocol.IntentError{
		SessionID: sessionID,
		Code:      code,
		Message:   cause.Error(),
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectIntentError, msg); err != nil {
		s.log.Warn("failed to publish intent error", slog.String("error", err.Error()))
	}
	s.appendEvent(eventstore.Event{
		SessionID: sessionID,
		Type:      eventstore.EventIntentRejected,
		Code:      code,
	})
}

func (s *Service) handleStop(cmd protocol.CaptureCommand) {
	if !s.owns(cmd.SessionID) {
		return
	}
	s.session.Stop(s.ctx)
}

func (s *Service) handleCancel(cmd protocol.CaptureCommand) {
	if !s.owns(cmd.SessionID) {
		return
	}
	s.session.Cancel()
}

// owns reports whether the command targets the active session. Commands
// with an empty session id always apply.
func (s *Service) owns(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == sessionID
}

func (s *Service) publishStatus(sessionID string, listening bool) {
	msg := protocol.CaptureStatus{
		SessionID: sessionID,
		Listening: listening,
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectCaptureStatus, msg); err != nil {
		s.log.Warn("failed to publish capture status", slog.String("error", err.Error()))
	}
}

func (s *Service) appendSession(sessionID string) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.AppendSession(ctx, sessionID); err != nil {
		s.log.Warn("failed to record session", slog.String("error", err.Error()))
	}
}

func (s *Service) appendEvent(evt eventstore.Event) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("failed to record event", slog.String("error", err.Error()))
	}
}

// errorCode maps pipeline failures onto wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return protocol.ErrCodePermissionDenied
	case errors.Is(err, capture.ErrNoAudio):
		return protocol.ErrCodeNoAudio
	case errors.Is(err, capture.ErrLowConfidence):
		return protocol.ErrCodeLowConfidence
	default:
		return protocol.ErrCodePipelineFailure
	}
}
