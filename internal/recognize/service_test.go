package recognize

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-intent/internal/bus"
	"github.com/loqalabs/loqa-intent/internal/capture"
	"github.com/loqalabs/loqa-intent/internal/classifier"
	"github.com/loqalabs/loqa-intent/internal/config"
	"github.com/loqalabs/loqa-intent/internal/eventstore"
	"github.com/loqalabs/loqa-intent/internal/intent"
	"github.com/loqalabs/loqa-intent/internal/natsserver"
	"github.com/loqalabs/loqa-intent/internal/protocol"
)

// cannedPipeline satisfies capture.Pipeline without touching the model
// stack.
type cannedPipeline struct {
	result *classifier.Result
	err    error
}

func (p *cannedPipeline) Recognize(context.Context, string) (*classifier.Result, error) {
	return p.result, p.err
}

type serviceHarness struct {
	client  *bus.Client
	service *Service
}

func newServiceHarness(t *testing.T, pipe capture.Pipeline) *serviceHarness {
	t.Helper()

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, testLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	busCfg := config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}
	client, err := bus.Connect(context.Background(), busCfg, testLogger())
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)

	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, testLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rec := &capture.MockRecorder{Samples: make([]float64, 16000)}
	session := capture.NewSession(rec, pipe, time.Minute, t.TempDir(), testLogger())

	svc := NewService(context.Background(), config.CaptureConfig{Mode: "mock", ListenDurationMS: 2000}, client, session, store, testLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)

	return &serviceHarness{client: client, service: svc}
}

func collect[T any](t *testing.T, conn *nats.Conn, subject string) chan T {
	t.Helper()
	out := make(chan T, 8)
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var payload T
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Errorf("unmarshal %s: %v", subject, err)
			return
		}
		out <- payload
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", subject, err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return out
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for bus message")
	}
	var zero T
	return zero
}

func publishCommand(t *testing.T, conn *nats.Conn, subject string, cmd protocol.CaptureCommand) {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if err := conn.Publish(subject, data); err != nil {
		t.Fatalf("publish %s: %v", subject, err)
	}
}

func TestServicePublishesIntentResult(t *testing.T) {
	pipe := &cannedPipeline{result: &classifier.Result{Label: "activar_lector", Score: 0.95, Group: intent.SignReader}}
	h := newServiceHarness(t, pipe)
	conn := h.client.Conn()

	statuses := collect[protocol.CaptureStatus](t, conn, protocol.SubjectCaptureStatus)
	results := collect[protocol.IntentResult](t, conn, protocol.SubjectIntentResult)

	publishCommand(t, conn, protocol.SubjectCaptureStart, protocol.CaptureCommand{SessionID: "s1"})
	if status := recv(t, statuses); !status.Listening || status.SessionID != "s1" {
		t.Fatalf("unexpected status: %+v", status)
	}

	publishCommand(t, conn, protocol.SubjectCaptureStop, protocol.CaptureCommand{SessionID: "s1"})
	if status := recv(t, statuses); status.Listening {
		t.Fatalf("expected not-listening status, got %+v", status)
	}

	result := recv(t, results)
	if result.SessionID != "s1" || result.Label != "activar_lector" || result.Group != "sign_reader" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestServicePublishesLowConfidenceError(t *testing.T) {
	h := newServiceHarness(t, &cannedPipeline{})
	conn := h.client.Conn()

	statuses := collect[protocol.CaptureStatus](t, conn, protocol.SubjectCaptureStatus)
	errs := collect[protocol.IntentError](t, conn, protocol.SubjectIntentError)

	publishCommand(t, conn, protocol.SubjectCaptureStart, protocol.CaptureCommand{SessionID: "s2"})
	recv(t, statuses)
	publishCommand(t, conn, protocol.SubjectCaptureStop, protocol.CaptureCommand{SessionID: "s2"})

	intentErr := recv(t, errs)
	if intentErr.Code != protocol.ErrCodeLowConfidence {
		t.Fatalf("code = %q, want %q", intentErr.Code, protocol.ErrCodeLowConfidence)
	}
}

func TestServiceIgnoresStaleCommands(t *testing.T) {
	pipe := &cannedPipeline{result: &classifier.Result{Label: "abrir_menu", Score: 0.9, Group: intent.Menu}}
	h := newServiceHarness(t, pipe)
	conn := h.client.Conn()

	statuses := collect[protocol.CaptureStatus](t, conn, protocol.SubjectCaptureStatus)
	results := collect[protocol.IntentResult](t, conn, protocol.SubjectIntentResult)

	publishCommand(t, conn, protocol.SubjectCaptureStart, protocol.CaptureCommand{SessionID: "live"})
	recv(t, statuses)

	// A stop for a session that is not active must not end the capture.
	publishCommand(t, conn, protocol.SubjectCaptureStop, protocol.CaptureCommand{SessionID: "stale"})
	select {
	case r := <-results:
		t.Fatalf("stale stop produced result %+v", r)
	case <-time.After(200 * time.Millisecond):
	}

	publishCommand(t, conn, protocol.SubjectCaptureStop, protocol.CaptureCommand{SessionID: "live"})
	result := recv(t, results)
	if result.SessionID != "live" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestServiceCancelSuppressesOutcome(t *testing.T) {
	pipe := &cannedPipeline{result: &classifier.Result{Label: "leer_texto", Score: 0.9, Group: intent.Reading}}
	h := newServiceHarness(t, pipe)
	conn := h.client.Conn()

	statuses := collect[protocol.CaptureStatus](t, conn, protocol.SubjectCaptureStatus)
	results := collect[protocol.IntentResult](t, conn, protocol.SubjectIntentResult)
	errs := collect[protocol.IntentError](t, conn, protocol.SubjectIntentError)

	publishCommand(t, conn, protocol.SubjectCaptureStart, protocol.CaptureCommand{SessionID: "s3"})
	recv(t, statuses)

	publishCommand(t, conn, protocol.SubjectCaptureCancel, protocol.CaptureCommand{SessionID: "s3"})
	if status := recv(t, statuses); status.Listening {
		t.Fatalf("expected not-listening status, got %+v", status)
	}

	select {
	case r := <-results:
		t.Fatalf("cancelled capture produced result %+v", r)
	case e := <-errs:
		t.Fatalf("cancelled capture produced error %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{capture.ErrPermissionDenied, protocol.ErrCodePermissionDenied},
		{capture.ErrNoAudio, protocol.ErrCodeNoAudio},
		{capture.ErrLowConfidence, protocol.ErrCodeLowConfidence},
		{errors.New("boom"), protocol.ErrCodePipelineFailure},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.want {
			t.Fatalf("errorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
