package capture

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDetectVoiceActivity_SetsLastVoiceOnLoudFrame(t *testing.T) {
	s := NewAssemblyAIService("test")
	// craft a loud 10ms frame
	samples := make([]byte, 160*2)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(samples[i*2:(i+1)*2], 3000)
	}
	before := s.RecentlyDetectedVoice(0)
	s.detectVoiceActivity(samples)
	after := s.RecentlyDetectedVoice(0)
	if before && !after {
		t.Fatalf("expected voice detection change")
	}
}

func TestProcessMessage_TurnEmitsDelta(t *testing.T) {
	s := NewAssemblyAIService("test")
	if ended := s.processMessage([]byte(`{"type":"Turn","transcript":"how do plants","end_of_turn":false}`)); ended {
		t.Fatalf("turn message must not end the session")
	}
	select {
	case d := <-s.Deltas():
		if d.Text != "how do plants" || d.Final {
			t.Fatalf("unexpected delta: %+v", d)
		}
	default:
		t.Fatalf("expected a delta")
	}
}

func TestProcessMessage_FinalTurn(t *testing.T) {
	s := NewAssemblyAIService("test")
	s.processMessage([]byte(`{"type":"Turn","transcript":"done now.","end_of_turn":true}`))
	select {
	case d := <-s.Deltas():
		if !d.Final {
			t.Fatalf("expected final delta, got %+v", d)
		}
	default:
		t.Fatalf("expected a delta")
	}
}

func TestProcessMessage_TerminationEndsSession(t *testing.T) {
	s := NewAssemblyAIService("test")
	if ended := s.processMessage([]byte(`{"type":"Termination","audio_duration_seconds":1.5}`)); !ended {
		t.Fatalf("termination must end the session")
	}
}

func TestProcessMessage_GarbageIgnored(t *testing.T) {
	s := NewAssemblyAIService("test")
	if ended := s.processMessage([]byte(`not-json`)); ended {
		t.Fatalf("garbage must not end the session")
	}
	if ended := s.processMessage([]byte(`{"no_type":true}`)); ended {
		t.Fatalf("untyped message must not end the session")
	}
}

func TestStart_MissingKeyIsCaptureUnavailable(t *testing.T) {
	s := NewAssemblyAIService("")
	err := s.Start()
	if err == nil {
		t.Fatalf("expected error with empty api key")
	}
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	select {
	case d := <-s.Deltas():
		t.Fatalf("no delta expected after failed start, got %+v", d)
	default:
	}
}

func TestStop_Idempotent(t *testing.T) {
	s := NewAssemblyAIService("test")
	if err := s.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("done must be closed after stop")
	}
}
