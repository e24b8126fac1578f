package endpoint

import (
	"sync"
	"time"
)

// DefaultHold is the quiet period required before an utterance is considered
// complete. Keep conservative to avoid cutting the user mid-sentence.
const DefaultHold = 5500 * time.Millisecond

// Detector declares end-of-utterance after a quiet period. Reset re-arms the
// timer; every transcript delta should call Reset. Cancel disarms without
// firing. The detector fires at most once per arm cycle and holds no
// transcript content itself.
type Detector struct {
	hold time.Duration

	mu    sync.Mutex
	timer *time.Timer
	armed bool
	// gen invalidates in-flight timer callbacks: a callback only fires if
	// the generation it was armed with is still current, so a Reset racing
	// an expiry always wins and the fire waits a full hold again.
	gen   uint64
	fired chan time.Time
}

// New constructs a Detector with the given quiet period. A non-positive hold
// falls back to DefaultHold.
func New(hold time.Duration) *Detector {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Detector{
		hold:  hold,
		fired: make(chan time.Time, 1),
	}
}

// Fired returns the channel that delivers exactly one timestamp per arm
// cycle when the quiet period elapses.
func (d *Detector) Fired() <-chan time.Time { return d.fired }

// Reset (re)arms the quiet-period timer. Call it on every transcript delta.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.gen++
	g := d.gen
	if d.timer != nil {
		_ = d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.hold, func() { d.expire(g) })
}

// Cancel stops the timer without firing. The detector stays quiet until the
// next Reset.
func (d *Detector) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	d.gen++
	if d.timer != nil {
		_ = d.timer.Stop()
	}
}

func (d *Detector) expire(g uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed || g != d.gen {
		// a Reset or Cancel got in between this callback's scheduling and
		// its run; the quiet period restarts from that Reset
		return
	}
	d.armed = false
	// Delivered under the mutex so a fire can never slip out after a Reset
	// has returned. Buffered by one; if a previous firing was never
	// consumed, keep it rather than double-firing for the same listener.
	select {
	case d.fired <- time.Now():
	default:
	}
}
