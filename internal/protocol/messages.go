// Package protocol defines the bus message shapes and subjects shared by
// the intent runtime and its clients.
package protocol

import "time"

// CaptureCommand asks the runtime to start, stop, or cancel a capture.
// TimeoutMS is honored on start only; zero means the configured default.
type CaptureCommand struct {
	SessionID string `json:"session_id"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// CaptureStatus reports the listening state transition for a session.
type CaptureStatus struct {
	SessionID string    `json:"session_id"`
	Listening bool      `json:"listening"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentResult is an accepted classification broadcast on the bus.
type IntentResult struct {
	SessionID string    `json:"session_id"`
	Label     string    `json:"label"`
	Group     string    `json:"group"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentError reports a capture that produced no accepted intent. Code is
// one of the Err* constants so clients can branch without parsing text.
type IntentError struct {
	SessionID string    `json:"session_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectCaptureStart  = "voice.capture.start"
	SubjectCaptureStop   = "voice.capture.stop"
	SubjectCaptureCancel = "voice.capture.cancel"
	SubjectCaptureStatus = "voice.capture.status"
	SubjectIntentResult  = "voice.intent.result"
	SubjectIntentError   = "voice.intent.error"
)

// Error codes carried in IntentError.Code.
const (
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeNoAudio          = "no_audio"
	ErrCodeLowConfidence    = "low_confidence"
	ErrCodePipelineFailure  = "pipeline_failure"
)
