package rtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/Debottam1234567890/Wispen-sub000/internal/speech"
)

// sampleWriter is the slice of TrackLocalStaticSample the player needs.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// PacedTrackPlayer encodes 48kHz PCM mono audio units to Opus frames and
// delivers them paced to a WebRTC track, one unit at a time. It is the
// pipeline's audio-output resource: Play blocks until the unit's frames are
// on the wire, Pause freezes delivery in place mid-unit, and Resume picks up
// from the same frame.
type PacedTrackPlayer struct {
	enc          *opus.Encoder
	track        sampleWriter
	frameSamples int
	paused       atomic.Bool
	mu           sync.Mutex // serializes encoder use across Play/FlushTail
}

// NewPacedTrackPlayer constructs a player emitting 20ms frames at 48kHz mono.
func NewPacedTrackPlayer(track *webrtc.TrackLocalStaticSample) (*PacedTrackPlayer, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return &PacedTrackPlayer{
		enc:          enc,
		track:        track,
		frameSamples: 960, // 20ms at 48kHz
	}, nil
}

// Play encodes the unit and writes its frames to the track at 20ms cadence.
// It returns when the last frame has been written, or earlier with ctx's
// error on cancellation. While paused, the cadence ticks on but no frame is
// written and the position does not advance.
func (p *PacedTrackPlayer) Play(ctx context.Context, u speech.AudioUnit) error {
	return p.deliver(ctx, p.encode(u.PCM))
}

func (p *PacedTrackPlayer) deliver(ctx context.Context, frames [][]byte) error {
	if len(frames) == 0 {
		return nil
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; i < len(frames); {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			_ = p.track.WriteSample(media.Sample{Data: frames[i], Duration: 20 * time.Millisecond})
			i++
		}
	}
	return nil
}

// Pause freezes frame delivery without losing position.
func (p *PacedTrackPlayer) Pause() { p.paused.Store(true) }

// Resume continues delivery from the paused frame.
func (p *PacedTrackPlayer) Resume() { p.paused.Store(false) }

// FlushTail writes a short silence tail to avoid clipping the final frame.
func (p *PacedTrackPlayer) FlushTail() {
	p.mu.Lock()
	silence := make([]int16, p.frameSamples)
	opusBuf := make([]byte, 4000)
	var frames [][]byte
	for i := 0; i < 10; i++ { // ~200ms
		n, err := p.enc.Encode(silence, opusBuf)
		if err != nil || n == 0 {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, opusBuf[:n])
		frames = append(frames, pkt)
	}
	p.mu.Unlock()
	for _, f := range frames {
		_ = p.track.WriteSample(media.Sample{Data: f, Duration: 20 * time.Millisecond})
		time.Sleep(20 * time.Millisecond)
	}
}

// encode converts s16le PCM bytes into 20ms Opus frames, zero-padding the
// final partial frame.
func (p *PacedTrackPlayer) encode(pcmBytes []byte) [][]byte {
	if len(pcmBytes) < 2 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := make([]int16, len(pcmBytes)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	var frames [][]byte
	opusBuf := make([]byte, 4000)
	for off := 0; off < len(samples); off += p.frameSamples {
		end := off + p.frameSamples
		frame := make([]int16, p.frameSamples)
		if end > len(samples) {
			copy(frame, samples[off:])
		} else {
			copy(frame, samples[off:end])
		}
		n, err := p.enc.Encode(frame, opusBuf)
		if err != nil || n == 0 {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, opusBuf[:n])
		frames = append(frames, pkt)
	}
	return frames
}
