package speech

import (
	"math/rand"
	"testing"
)

func TestQueue_OrdinalOrderUnderArbitraryArrival(t *testing.T) {
	const n = 8
	q := NewQueue()
	perm := rand.New(rand.NewSource(42)).Perm(n)
	var got []int
	for _, ord := range perm {
		q.Put(AudioUnit{Ordinal: ord})
		for {
			u, ok := q.PopNext()
			if !ok {
				break
			}
			got = append(got, u.Ordinal)
		}
	}
	if len(got) != n {
		t.Fatalf("popped %d units, want %d", len(got), n)
	}
	for i, ord := range got {
		if ord != i {
			t.Fatalf("position %d: got ordinal %d", i, ord)
		}
	}
}

func TestQueue_BuffersUntilNextOrdinalReady(t *testing.T) {
	q := NewQueue()
	q.Put(AudioUnit{Ordinal: 1})
	if _, ok := q.PopNext(); ok {
		t.Fatalf("popped ordinal 1 while 0 still in flight")
	}
	q.Put(AudioUnit{Ordinal: 0})
	u, ok := q.PopNext()
	if !ok || u.Ordinal != 0 {
		t.Fatalf("expected ordinal 0, got %+v ok=%v", u, ok)
	}
	u, ok = q.PopNext()
	if !ok || u.Ordinal != 1 {
		t.Fatalf("expected ordinal 1, got %+v ok=%v", u, ok)
	}
}

func TestQueue_SkipAdvancesCursor(t *testing.T) {
	q := NewQueue()
	q.Put(AudioUnit{Ordinal: 0})
	q.Skip(1)
	q.Put(AudioUnit{Ordinal: 2})
	var got []int
	for {
		u, ok := q.PopNext()
		if !ok {
			break
		}
		got = append(got, u.Ordinal)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("got %v, want [0 2]", got)
	}
}

func TestQueue_LateArrivalBehindCursorDiscarded(t *testing.T) {
	q := NewQueue()
	q.Skip(0)
	if _, ok := q.PopNext(); ok {
		t.Fatalf("nothing should be ready")
	}
	// ordinal 0 completes late, after its slot was skipped and passed
	q.Put(AudioUnit{Ordinal: 0})
	if _, ok := q.PopNext(); ok {
		t.Fatalf("stale unit must not replay a passed ordinal")
	}
	if q.Len() != 0 {
		t.Fatalf("stale unit retained in queue")
	}
}

func TestQueue_DropReleasesEverything(t *testing.T) {
	q := NewQueue()
	q.Put(AudioUnit{Ordinal: 0})
	q.Put(AudioUnit{Ordinal: 1})
	q.Drop()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drop")
	}
	if _, ok := q.PopNext(); ok {
		t.Fatalf("popped from dropped queue")
	}
}
