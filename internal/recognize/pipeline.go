// Package recognize runs the voice intent pipeline: decode a recorded
// clip, extract MFCC features, classify, and map the label to an intent
// group. The bus service in this package drives the pipeline from capture
// commands.
package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-intent/internal/classifier"
	"github.com/loqalabs/loqa-intent/internal/config"
	"github.com/loqalabs/loqa-intent/internal/mfcc"
	"github.com/loqalabs/loqa-intent/internal/wave"
)

const instrumentationName = "github.com/loqalabs/loqa-intent/internal/recognize"

// Pipeline is the decode, feature extraction, and classification chain.
// A nil result with nil error means the clip fell below the confidence
// threshold.
type Pipeline struct {
	extractor  *mfcc.Extractor
	clf        *classifier.Classifier
	sampleRate int
	log        *slog.Logger

	tracer       trace.Tracer
	recognitions metric.Int64Counter
	latency      metric.Float64Histogram
}

// NewPipeline builds the pipeline around a ready classifier. The feature
// extractor shape is derived from the model's declared input tensor.
func NewPipeline(cfg config.AudioConfig, clf *classifier.Classifier, log *slog.Logger) (*Pipeline, error) {
	extractor, err := mfcc.New(cfg, clf.FrameCount(), clf.CoeffCount())
	if err != nil {
		return nil, fmt.Errorf("build feature extractor: %w", err)
	}

	meter := otel.Meter(instrumentationName)
	recognitions, err := meter.Int64Counter("loqa_intent_recognitions_total",
		metric.WithDescription("Recognition pipeline runs by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create recognitions counter: %w", err)
	}
	latency, err := meter.Float64Histogram("loqa_intent_recognition_duration_seconds",
		metric.WithDescription("End-to-end recognition pipeline latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	return &Pipeline{
		extractor:    extractor,
		clf:          clf,
		sampleRate:   cfg.SampleRate,
		log:          log.With(slog.String("component", "recognize")),
		tracer:       otel.Tracer(instrumentationName),
		recognitions: recognitions,
		latency:      latency,
	}, nil
}

// Recognize classifies one recorded WAV file.
func (p *Pipeline) Recognize(ctx context.Context, wavPath string) (*classifier.Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "recognize")
	defer span.End()

	result, err := p.run(ctx, wavPath)

	outcome := "accepted"
	switch {
	case err != nil:
		outcome = "error"
	case result == nil:
		outcome = "rejected"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	p.recognitions.Add(ctx, 1, attrs)
	p.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	span.SetAttributes(attribute.String("outcome", outcome))

	return result, err
}

func (p *Pipeline) run(ctx context.Context, wavPath string) (*classifier.Result, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}

	_, decodeSpan := p.tracer.Start(ctx, "decode")
	clip, err := wave.Decode(data, p.sampleRate)
	decodeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}

	_, featureSpan := p.tracer.Start(ctx, "extract_features")
	features, err := p.extractor.Extract(clip)
	featureSpan.End()
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	ctx, classifySpan := p.tracer.Start(ctx, "classify")
	result, err := p.clf.Classify(ctx, features)
	classifySpan.End()
	if err != nil {
		return nil, err
	}

	p.log.Debug("pipeline finished",
		slog.Float64("clip_seconds", clip.Duration()),
		slog.Bool("accepted", result != nil))
	return result, nil
}
