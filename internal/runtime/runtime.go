// Package runtime assembles the intent service: telemetry, bus, event
// store, classifier, capture session, and the HTTP health surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-intent/internal/bus"
	"github.com/loqalabs/loqa-intent/internal/capture"
	"github.com/loqalabs/loqa-intent/internal/classifier"
	"github.com/loqalabs/loqa-intent/internal/config"
	"github.com/loqalabs/loqa-intent/internal/eventstore"
	"github.com/loqalabs/loqa-intent/internal/natsserver"
	"github.com/loqalabs/loqa-intent/internal/recognize"
)

// defaultLabels back the mock classifier in development mode when no
// label file is configured.
var defaultLabels = []string{"activar_lector", "leer_texto", "abrir_menu"}

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer     *http.Server
	telemetryClose func(context.Context) error
	embedded       *natsserver.EmbeddedServer
	busClient      *bus.Client
	store          *eventstore.Store
	clf            *classifier.Classifier
	service        *recognize.Service

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.embedded.Shutdown()
		return fmt.Errorf("connect bus: %w", err)
	}
	r.busClient = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	clf, err := r.buildClassifier(ctx)
	if err != nil {
		r.teardown()
		return fmt.Errorf("build classifier: %w", err)
	}
	r.clf = clf

	recorder, err := r.buildRecorder()
	if err != nil {
		r.teardown()
		return fmt.Errorf("build recorder: %w", err)
	}

	pipeline, err := recognize.NewPipeline(r.cfg.Audio, clf, r.logger)
	if err != nil {
		recorder.Close()
		r.teardown()
		return fmt.Errorf("build pipeline: %w", err)
	}

	listenTimeout := time.Duration(r.cfg.Capture.ListenDurationMS) * time.Millisecond
	session := capture.NewSession(recorder, pipeline, listenTimeout, r.cfg.Capture.TempDir, r.logger)

	r.service = recognize.NewService(ctx, r.cfg.Capture, busClient, session, store, r.logger)
	if err := r.service.Start(); err != nil {
		session.Dispose()
		r.teardown()
		return fmt.Errorf("start intent service: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("classifier_mode", r.cfg.Classifier.Mode),
		slog.String("capture_mode", r.cfg.Capture.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.service.Close()
	r.teardown()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// teardown releases components in reverse start order. Safe to call with
// partially initialized state.
func (r *Runtime) teardown() {
	if r.clf != nil {
		if err := r.clf.Close(); err != nil {
			r.logger.Warn("classifier close failed", slog.String("error", err.Error()))
		}
		r.clf = nil
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("event store close failed", slog.String("error", err.Error()))
		}
		r.store = nil
	}
	if r.busClient != nil {
		r.busClient.Close()
		r.busClient = nil
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
		r.embedded = nil
	}
}

func (r *Runtime) buildClassifier(ctx context.Context) (*classifier.Classifier, error) {
	labels := defaultLabels
	if r.cfg.Classifier.LabelsPath != "" {
		loaded, err := classifier.LoadLabels(r.cfg.Classifier.LabelsPath)
		if err != nil {
			return nil, err
		}
		labels = loaded
	}

	var model classifier.Model
	switch r.cfg.Classifier.Mode {
	case "exec":
		m, err := classifier.NewExecModel(ctx, r.cfg.Classifier)
		if err != nil {
			return nil, err
		}
		model = m
	default:
		frames := (r.cfg.Audio.SampleRate-r.cfg.Audio.FrameLengthMS*r.cfg.Audio.SampleRate/1000)/
			(r.cfg.Audio.FrameStepMS*r.cfg.Audio.SampleRate/1000) + 1
		scores := make([]float32, len(labels))
		scores[0] = 2.5
		model = classifier.NewMockModel(
			[]int{1, frames, r.cfg.Audio.NumCoefficients},
			[]int{1, len(labels)},
			scores,
		)
	}

	return classifier.New(model, labels, r.cfg.Classifier.ProbabilityThreshold, r.logger)
}

func (r *Runtime) buildRecorder() (capture.Recorder, error) {
	switch r.cfg.Capture.Mode {
	case "exec":
		return capture.NewExecRecorder(r.cfg.Capture, r.cfg.Audio.SampleRate)
	default:
		return &capture.MockRecorder{
			Samples:    make([]float64, r.cfg.Audio.SampleRate),
			SampleRate: r.cfg.Audio.SampleRate,
		}, nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.service.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
