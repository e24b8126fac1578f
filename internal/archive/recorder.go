// Package archive captures raw turn audio and hands it off for asynchronous
// persistence. It is a fire-and-forget side channel: persistence failure is
// reported in logs, never propagated into the conversation flow.
package archive

import (
	"encoding/binary"
	"log"
	"sync"
	"time"
)

// Uploader persists one audio object. Implementations must be safe for
// concurrent use.
type Uploader interface {
	Upload(objectKey string, contentType string, body []byte) error
}

// Recorder accumulates raw 16kHz s16le mono PCM for the active turn. Begin
// starts a capture keyed by turn id, Write appends audio fed during that
// turn, and Finish frames the accumulated audio as WAV and uploads it on a
// detached goroutine.
type Recorder struct {
	uploader   Uploader
	sampleRate int

	mu      sync.Mutex
	turnID  string
	pcm     []byte
	started time.Time
}

func NewRecorder(uploader Uploader) *Recorder {
	return &Recorder{uploader: uploader, sampleRate: 16000}
}

// Begin starts accumulating audio for the given turn, discarding any
// unfinished previous capture.
func (r *Recorder) Begin(turnID string) {
	r.mu.Lock()
	r.turnID = turnID
	r.pcm = r.pcm[:0]
	r.started = time.Now()
	r.mu.Unlock()
}

// Write appends raw PCM. Safe to call from the capture feed path.
func (r *Recorder) Write(pcm []byte) {
	r.mu.Lock()
	if r.turnID != "" {
		r.pcm = append(r.pcm, pcm...)
	}
	r.mu.Unlock()
}

// Finish hands the captured audio off for persistence and resets the
// recorder. The upload happens on its own goroutine; the caller never waits
// on it and never sees its failure.
func (r *Recorder) Finish() {
	r.mu.Lock()
	turnID := r.turnID
	pcm := make([]byte, len(r.pcm))
	copy(pcm, r.pcm)
	r.turnID = ""
	r.pcm = r.pcm[:0]
	r.mu.Unlock()

	if turnID == "" || len(pcm) == 0 || r.uploader == nil {
		return
	}
	duration := time.Duration(len(pcm)/2) * time.Second / time.Duration(r.sampleRate)
	blob := wavBytes(pcm, r.sampleRate)
	go func() {
		key := "recordings/" + turnID + ".wav"
		if err := r.uploader.Upload(key, "audio/wav", blob); err != nil {
			log.Printf("archive: upload turn %s (%.1fs) failed: %v", turnID, duration.Seconds(), err)
			return
		}
		log.Printf("archive: stored turn %s (%.1fs, %d bytes)", turnID, duration.Seconds(), len(blob))
	}()
}

// wavBytes wraps raw s16le mono PCM in a minimal RIFF/WAVE header.
func wavBytes(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
