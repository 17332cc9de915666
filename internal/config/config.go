package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// AudioConfig holds feature extraction parameters. The pipeline accepts
// exactly one input format (mono 16-bit PCM at SampleRate) and never
// resamples.
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	FrameLengthMS   int     `yaml:"frame_length_ms"`
	FrameStepMS     int     `yaml:"frame_step_ms"`
	NumFilters      int     `yaml:"num_filters"`
	NumCoefficients int     `yaml:"num_coefficients"`
	PreEmphasis     float64 `yaml:"pre_emphasis"`
}

type ClassifierConfig struct {
	Mode                 string  `yaml:"mode"` // mock, exec
	Command              string  `yaml:"command"`
	ModelPath            string  `yaml:"model_path"`
	LabelsPath           string  `yaml:"labels_path"`
	ProbabilityThreshold float64 `yaml:"probability_threshold"`
}

type CaptureConfig struct {
	Mode             string `yaml:"mode"` // mock, exec
	Command          string `yaml:"command"`
	ListenDurationMS int    `yaml:"listen_duration_ms"`
	TempDir          string `yaml:"temp_dir"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Audio       AudioConfig      `yaml:"audio"`
	Classifier  ClassifierConfig `yaml:"classifier"`
	Capture     CaptureConfig    `yaml:"capture"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-intent",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-intent-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameLengthMS:   40,
			FrameStepMS:     20,
			NumFilters:      40,
			NumCoefficients: 13,
			PreEmphasis:     0.97,
		},
		Classifier: ClassifierConfig{
			Mode:                 "mock",
			ProbabilityThreshold: 0.6,
		},
		Capture: CaptureConfig{
			Mode:             "mock",
			ListenDurationMS: 2000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_INTENT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_INTENT_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_INTENT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_INTENT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_INTENT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_INTENT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_INTENT_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_INTENT_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_INTENT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_INTENT_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_INTENT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_INTENT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_INTENT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_INTENT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_INTENT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_INTENT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_INTENT_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_INTENT_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_INTENT_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_INTENT_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_INTENT_EVENT_STORE_VACUUM_ON_START")
	overrideInt(&cfg.Audio.SampleRate, "LOQA_INTENT_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.FrameLengthMS, "LOQA_INTENT_AUDIO_FRAME_LENGTH_MS")
	overrideInt(&cfg.Audio.FrameStepMS, "LOQA_INTENT_AUDIO_FRAME_STEP_MS")
	overrideInt(&cfg.Audio.NumFilters, "LOQA_INTENT_AUDIO_NUM_FILTERS")
	overrideInt(&cfg.Audio.NumCoefficients, "LOQA_INTENT_AUDIO_NUM_COEFFICIENTS")
	overrideFloat(&cfg.Audio.PreEmphasis, "LOQA_INTENT_AUDIO_PRE_EMPHASIS")
	overrideString(&cfg.Classifier.Mode, "LOQA_INTENT_CLASSIFIER_MODE")
	overrideString(&cfg.Classifier.Command, "LOQA_INTENT_CLASSIFIER_COMMAND")
	overrideString(&cfg.Classifier.ModelPath, "LOQA_INTENT_CLASSIFIER_MODEL_PATH")
	overrideString(&cfg.Classifier.LabelsPath, "LOQA_INTENT_CLASSIFIER_LABELS_PATH")
	overrideFloat(&cfg.Classifier.ProbabilityThreshold, "LOQA_INTENT_CLASSIFIER_PROBABILITY_THRESHOLD")
	overrideString(&cfg.Capture.Mode, "LOQA_INTENT_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "LOQA_INTENT_CAPTURE_COMMAND")
	overrideInt(&cfg.Capture.ListenDurationMS, "LOQA_INTENT_CAPTURE_LISTEN_DURATION_MS")
	overrideString(&cfg.Capture.TempDir, "LOQA_INTENT_CAPTURE_TEMP_DIR")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.FrameLengthMS <= 0 || cfg.Audio.FrameStepMS <= 0 {
		return errors.New("audio.frame_length_ms and audio.frame_step_ms must be positive")
	}
	if cfg.Audio.FrameStepMS > cfg.Audio.FrameLengthMS {
		return errors.New("audio.frame_step_ms must not exceed audio.frame_length_ms")
	}
	if cfg.Audio.NumFilters <= 0 {
		return errors.New("audio.num_filters must be positive")
	}
	if cfg.Audio.NumCoefficients <= 0 || cfg.Audio.NumCoefficients > cfg.Audio.NumFilters {
		return errors.New("audio.num_coefficients must be between 1 and audio.num_filters")
	}
	if cfg.Audio.PreEmphasis < 0 || cfg.Audio.PreEmphasis >= 1 {
		return errors.New("audio.pre_emphasis must be in [0, 1)")
	}
	switch cfg.Classifier.Mode {
	case "mock", "exec":
	default:
		return errors.New("classifier.mode must be one of mock|exec")
	}
	if cfg.Classifier.Mode == "exec" && cfg.Classifier.Command == "" {
		return errors.New("classifier.command must be set when mode=exec")
	}
	if cfg.Classifier.ProbabilityThreshold < 0 || cfg.Classifier.ProbabilityThreshold > 1 {
		return errors.New("classifier.probability_threshold must be in [0, 1]")
	}
	switch cfg.Capture.Mode {
	case "mock", "exec":
	default:
		return errors.New("capture.mode must be one of mock|exec")
	}
	if cfg.Capture.Mode == "exec" && cfg.Capture.Command == "" {
		return errors.New("capture.command must be set when mode=exec")
	}
	if cfg.Capture.ListenDurationMS <= 0 {
		return errors.New("capture.listen_duration_ms must be positive")
	}
	return nil
}
