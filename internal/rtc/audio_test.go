package rtc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

type fakeTrack struct{ writes int32 }

func (f *fakeTrack) WriteSample(s media.Sample) error {
	atomic.AddInt32(&f.writes, 1)
	return nil
}

func TestPacedTrackPlayer_DeliverPacesFrames(t *testing.T) {
	ft := &fakeTrack{}
	p := &PacedTrackPlayer{
		enc:          nil, // encoder not needed for this test
		track:        ft,
		frameSamples: 960,
	}
	frames := [][]byte{{0x01}, {0x02}, {0x03}}

	start := time.Now()
	if err := p.deliver(context.Background(), frames); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got := atomic.LoadInt32(&ft.writes); got != 3 {
		t.Fatalf("expected 3 frames written, got %d", got)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected paced delivery, finished in %v", elapsed)
	}
}

func TestPacedTrackPlayer_PauseFreezesPosition(t *testing.T) {
	ft := &fakeTrack{}
	p := &PacedTrackPlayer{track: ft, frameSamples: 960}
	p.Pause()

	frames := [][]byte{{0x01}, {0x02}}
	done := make(chan error, 1)
	go func() { done <- p.deliver(context.Background(), frames) }()

	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&ft.writes); got != 0 {
		t.Fatalf("expected no frames while paused, got %d", got)
	}

	p.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("deliver did not finish after resume")
	}
	if got := atomic.LoadInt32(&ft.writes); got != 2 {
		t.Fatalf("expected 2 frames after resume, got %d", got)
	}
}

func TestPacedTrackPlayer_CancelStopsDelivery(t *testing.T) {
	ft := &fakeTrack{}
	p := &PacedTrackPlayer{track: ft, frameSamples: 960}
	p.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.deliver(ctx, [][]byte{{0x01}, {0x02}, {0x03}}) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatalf("deliver did not observe cancellation")
	}
}
