// Package capture wraps a continuous speech-to-text source behind a small
// adapter: incremental transcript deltas in, an explicit end-of-stream
// signal, and deterministic release of the audio-input resource.
package capture

import "errors"

// ErrCaptureUnavailable is returned by Start when the capture resource
// cannot be acquired (missing credentials, dial failure, device busy). No
// deltas are ever emitted after a failed Start.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Delta is one incremental unit of recognized speech. Interim deltas are
// superseded by later ones; Final marks the recognizer's own end-of-turn
// formatting pass.
type Delta struct {
	Text  string
	Final bool
}

// Source is the minimal interface for realtime STT consumed by the
// conversation controller. Implementations must accept PCM 16kHz
// little-endian mono buffers via Feed.
type Source interface {
	// Start acquires the capture resource and begins recognition.
	Start() error
	// Stop releases the resource. Safe to call more than once and from any
	// state; every exit path releases the underlying connection.
	Stop() error
	// Feed sends input audio to the recognizer.
	Feed(pcm []byte) error
	// Deltas streams transcript updates until the source stops or ends.
	Deltas() <-chan Delta
	// Done is closed when recognition ends on its own (remote termination),
	// distinct from delta delivery.
	Done() <-chan struct{}
}
