package speech

import "sync"

// Queue is an index-ordered buffer of synthesized audio units. Units may be
// inserted in any completion order but are only ever handed out in strictly
// increasing ordinal order. Skipped ordinals (failed synthesis) are recorded
// so the cursor can advance past them instead of stalling.
type Queue struct {
	mu      sync.Mutex
	ready   map[int]AudioUnit
	skipped map[int]struct{}
	next    int
}

func NewQueue() *Queue {
	return &Queue{
		ready:   make(map[int]AudioUnit),
		skipped: make(map[int]struct{}),
	}
}

// Put inserts a completed unit. Units at or behind the playback cursor are
// discarded; they arrived after their slot was skipped or the turn moved on.
func (q *Queue) Put(u AudioUnit) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if u.Ordinal < q.next {
		return
	}
	q.ready[u.Ordinal] = u
}

// Skip marks an ordinal as accounted for without audio.
func (q *Queue) Skip(ordinal int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ordinal < q.next {
		return
	}
	q.skipped[ordinal] = struct{}{}
}

// PopNext returns the unit for the lowest unplayed ordinal, advancing the
// cursor past any skipped slots. ok is false while the next required ordinal
// is still in flight (the buffering condition).
func (q *Queue) PopNext() (AudioUnit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if _, skip := q.skipped[q.next]; skip {
			delete(q.skipped, q.next)
			q.next++
			continue
		}
		u, ok := q.ready[q.next]
		if !ok {
			return AudioUnit{}, false
		}
		delete(q.ready, q.next)
		q.next++
		return u, true
	}
}

// Len reports how many ready units are buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Drop releases every buffered unit and skip marker (turn cancelled).
func (q *Queue) Drop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = make(map[int]AudioUnit)
	q.skipped = make(map[int]struct{})
}
