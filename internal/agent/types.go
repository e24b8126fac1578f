package agent

import "context"

// State is the conversation controller's current phase. Exactly one turn is
// active at a time and the states cycle Idle -> Listening -> Processing ->
// Speaking -> Idle.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// EventKind tags outward events consumed by the UI layer.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventTranscriptUpdated
	EventReplyTextUpdated
	EventError
)

// Error kinds surfaced to the user. Per-segment synthesis failures and
// archival failures are recovered locally and never appear here.
const (
	ErrKindCaptureUnavailable = "capture_unavailable"
	ErrKindSubmissionFailed   = "submission_failed"
)

// Event is one outward notification. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind    EventKind
	State   State
	Text    string
	ErrKind string
	Message string
}

// LLM streams one assistant reply for a prompt, chunk by chunk. The text
// channel closes when the reply ends; a failed request is delivered on the
// error channel instead.
type LLM interface {
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Recorder is the archival sidecar seen by the session: fire-and-forget
// per-turn raw audio capture.
type Recorder interface {
	Begin(turnID string)
	Write(pcm []byte)
	Finish()
}

type nopRecorder struct{}

func (nopRecorder) Begin(string) {}
func (nopRecorder) Write([]byte) {}
func (nopRecorder) Finish()      {}
