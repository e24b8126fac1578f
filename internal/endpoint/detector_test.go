package endpoint

import (
	"testing"
	"time"
)

func TestDetector_FiresAfterHold(t *testing.T) {
	d := New(30 * time.Millisecond)
	start := time.Now()
	d.Reset()
	select {
	case <-d.Fired():
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Fatalf("fired too early: %v", elapsed)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for detector to fire")
	}
}

func TestDetector_ResetPushesDeadlineForward(t *testing.T) {
	d := New(50 * time.Millisecond)
	d.Reset()
	// Keep resetting; detector must not fire while deltas keep arriving.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		select {
		case <-d.Fired():
			t.Fatalf("fired despite resets")
		default:
		}
		d.Reset()
	}
	select {
	case <-d.Fired():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("never fired after resets stopped")
	}
}

func TestDetector_CancelSuppressesFiring(t *testing.T) {
	d := New(20 * time.Millisecond)
	d.Reset()
	d.Cancel()
	select {
	case <-d.Fired():
		t.Fatalf("fired after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDetector_ResetNearExpiryRestartsHold(t *testing.T) {
	const hold = 20 * time.Millisecond
	// A Reset landing exactly as the previous hold expires must restart the
	// full quiet period, never convert the stale expiry into an instant fire.
	for i := 0; i < 25; i++ {
		d := New(hold)
		d.Reset()
		time.Sleep(hold) // expiry and re-arm race
		d.Reset()
		rearm := time.Now()
		select {
		case ts := <-d.Fired():
			// a fire stamped before the re-arm belongs to the first cycle
			if ts.After(rearm) && ts.Sub(rearm) < hold/2 {
				t.Fatalf("iter %d: fired %v after re-arm, hold %v", i, ts.Sub(rearm), hold)
			}
		case <-time.After(hold / 2):
		}
		d.Cancel()
	}
}

func TestDetector_FiresOncePerArmCycle(t *testing.T) {
	d := New(10 * time.Millisecond)
	d.Reset()
	select {
	case <-d.Fired():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("never fired")
	}
	// Without another Reset there must be no second firing.
	select {
	case <-d.Fired():
		t.Fatalf("double-fired in one arm cycle")
	case <-time.After(50 * time.Millisecond):
	}
	// Re-arming fires again.
	d.Reset()
	select {
	case <-d.Fired():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("did not fire after re-arm")
	}
}
