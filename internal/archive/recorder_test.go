package archive

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu      sync.Mutex
	keys    []string
	bodies  [][]byte
	failAll bool
}

func (f *fakeUploader) Upload(key, contentType string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("storage down")
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, body)
	return nil
}

func waitUploads(f *fakeUploader, n int) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := len(f.keys)
		f.mu.Unlock()
		if got >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestRecorder_UploadsWavKeyedByTurn(t *testing.T) {
	up := &fakeUploader{}
	r := NewRecorder(up)
	r.Begin("turn-123")
	r.Write(make([]byte, 3200)) // 100ms of 16kHz s16le
	r.Finish()

	if !waitUploads(up, 1) {
		t.Fatalf("upload never happened")
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.keys[0] != "recordings/turn-123.wav" {
		t.Fatalf("unexpected key %q", up.keys[0])
	}
	body := up.bodies[0]
	if string(body[0:4]) != "RIFF" || string(body[8:12]) != "WAVE" {
		t.Fatalf("body is not a WAV container")
	}
	if dataLen := binary.LittleEndian.Uint32(body[40:44]); dataLen != 3200 {
		t.Fatalf("data chunk length %d, want 3200", dataLen)
	}
}

func TestRecorder_WriteWithoutBeginDropped(t *testing.T) {
	up := &fakeUploader{}
	r := NewRecorder(up)
	r.Write([]byte{1, 2, 3, 4})
	r.Finish()
	time.Sleep(20 * time.Millisecond)
	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.keys) != 0 {
		t.Fatalf("nothing should be uploaded without an active turn")
	}
}

func TestRecorder_UploadFailureIsSwallowed(t *testing.T) {
	up := &fakeUploader{failAll: true}
	r := NewRecorder(up)
	r.Begin("t1")
	r.Write(make([]byte, 320))
	r.Finish() // must not panic or block
	time.Sleep(20 * time.Millisecond)

	// A later turn still records normally.
	up.mu.Lock()
	up.failAll = false
	up.mu.Unlock()
	r.Begin("t2")
	r.Write(make([]byte, 320))
	r.Finish()
	if !waitUploads(up, 1) {
		t.Fatalf("second turn was not uploaded")
	}
}

func TestRecorder_BeginDiscardsPreviousCapture(t *testing.T) {
	up := &fakeUploader{}
	r := NewRecorder(up)
	r.Begin("t1")
	r.Write(make([]byte, 6400))
	r.Begin("t2")
	r.Write(make([]byte, 320))
	r.Finish()
	if !waitUploads(up, 1) {
		t.Fatalf("upload never happened")
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.keys[0] != "recordings/t2.wav" {
		t.Fatalf("unexpected key %q", up.keys[0])
	}
	if dataLen := binary.LittleEndian.Uint32(up.bodies[0][40:44]); dataLen != 320 {
		t.Fatalf("t1 audio leaked into t2 capture: data len %d", dataLen)
	}
}
