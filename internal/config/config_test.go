package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Classifier.ProbabilityThreshold != 0.6 {
		t.Fatalf("expected default threshold 0.6, got %v", cfg.Classifier.ProbabilityThreshold)
	}
	if cfg.Capture.ListenDurationMS != 2000 {
		t.Fatalf("expected default listen duration 2000ms, got %d", cfg.Capture.ListenDurationMS)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_INTENT_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_INTENT_BUS_USERNAME", "alice")
	t.Setenv("LOQA_INTENT_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_INTENT_CLASSIFIER_PROBABILITY_THRESHOLD", "0.8")
	t.Setenv("LOQA_INTENT_CAPTURE_LISTEN_DURATION_MS", "3500")
	t.Setenv("LOQA_INTENT_AUDIO_NUM_COEFFICIENTS", "20")
	t.Setenv("LOQA_INTENT_EVENT_STORE_PATH", "./tmp.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" {
		t.Fatalf("expected username override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Classifier.ProbabilityThreshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", cfg.Classifier.ProbabilityThreshold)
	}
	if cfg.Capture.ListenDurationMS != 3500 {
		t.Fatalf("expected listen duration 3500, got %d", cfg.Capture.ListenDurationMS)
	}
	if cfg.Audio.NumCoefficients != 20 {
		t.Fatalf("expected 20 coefficients, got %d", cfg.Audio.NumCoefficients)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
}

func TestValidateRejectsBadAudio(t *testing.T) {
	t.Setenv("LOQA_INTENT_AUDIO_FRAME_STEP_MS", "80")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when frame step exceeds frame length")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("LOQA_INTENT_CLASSIFIER_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for classifier mode=exec without command")
	}
}
