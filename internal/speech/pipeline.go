package speech

import (
	"context"
	"log"
)

// Synthesizer turns one cleaned text segment into one playable audio blob.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player delivers audio units sequentially. Play blocks until the unit has
// been fully delivered or ctx is cancelled. Pause suspends delivery of the
// current unit in place; Resume continues from the paused position.
type Player interface {
	Play(ctx context.Context, u AudioUnit) error
	Pause()
	Resume()
}

type eventKind int

const (
	evSegment eventKind = iota
	evUnit
	evSkip
	evPlayed
	evInputClosed
)

type event struct {
	kind    eventKind
	seg     Segment
	unit    AudioUnit
	ordinal int
}

// Pipeline drives segmentation, synthesis, and ordered playback for one
// assistant reply. Synthesis requests run concurrently but every effect is
// applied by a single event loop, so units enter the queue positionally and
// playback never runs out of order.
//
// Feed and CloseInput must be called from a single goroutine (they share the
// segmenter); everything else is safe to call from anywhere.
type Pipeline struct {
	synth  Synthesizer
	player Player

	seg    Segmenter
	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPipeline starts the pipeline loop for one reply. Cancel the pipeline (or
// its parent context) to abandon playback; Done is closed either way.
func NewPipeline(ctx context.Context, synth Synthesizer, player Player) *Pipeline {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		synth:  synth,
		player: player,
		events: make(chan event, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Feed appends a streamed reply-text chunk, dispatching synthesis for any
// sentence segments the chunk completes.
func (p *Pipeline) Feed(chunk string) {
	for _, seg := range p.seg.Write(chunk) {
		p.post(event{kind: evSegment, seg: seg})
	}
}

// CloseInput signals that the reply stream has ended. The trailing text, if
// any, becomes the final segment. The pipeline finishes once every segment
// ordinal has been played or skipped.
func (p *Pipeline) CloseInput() {
	if seg, ok := p.seg.Flush(); ok {
		p.post(event{kind: evSegment, seg: seg})
	}
	p.post(event{kind: evInputClosed})
}

// Cancel abandons synthesis and playback immediately.
func (p *Pipeline) Cancel() { p.cancel() }

// Pause suspends the player mid-unit. The queue keeps filling.
func (p *Pipeline) Pause() { p.player.Pause() }

// Resume continues playback from the paused position.
func (p *Pipeline) Resume() { p.player.Resume() }

// Done is closed when the pipeline completes naturally or is cancelled.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

func (p *Pipeline) post(ev event) {
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

func (p *Pipeline) run() {
	defer close(p.done)

	queue := NewQueue()
	var (
		segCount    int
		played      int
		skipped     int
		inputClosed bool
		playing     bool
	)

	startPlayer := func() {
		if playing {
			return
		}
		u, ok := queue.PopNext()
		if !ok {
			return // buffering: next required ordinal not ready yet
		}
		playing = true
		go func() {
			if err := p.player.Play(p.ctx, u); err != nil && p.ctx.Err() == nil {
				log.Printf("speech: play segment %d failed: %v", u.Ordinal, err)
			}
			p.post(event{kind: evPlayed})
		}()
	}

	for {
		select {
		case <-p.ctx.Done():
			queue.Drop()
			return
		case ev := <-p.events:
			switch ev.kind {
			case evSegment:
				segCount++
				go p.fetch(ev.seg)
			case evUnit:
				queue.Put(ev.unit)
				startPlayer()
			case evSkip:
				skipped++
				queue.Skip(ev.ordinal)
				startPlayer()
			case evPlayed:
				played++
				playing = false
				startPlayer()
			case evInputClosed:
				inputClosed = true
			}
			if inputClosed && !playing && played+skipped == segCount {
				return
			}
		}
	}
}

// fetch issues exactly one synthesis request for a segment. A failed or
// empty segment is skipped so the pipeline never stalls waiting for it; one
// bad segment must not silence the rest of the reply.
func (p *Pipeline) fetch(seg Segment) {
	if seg.Text == "" {
		p.post(event{kind: evSkip, ordinal: seg.Ordinal})
		return
	}
	pcm, err := p.synth.Synthesize(p.ctx, seg.Text)
	if err != nil {
		if p.ctx.Err() == nil {
			log.Printf("speech: synthesize segment %d failed: %v", seg.Ordinal, err)
		}
		p.post(event{kind: evSkip, ordinal: seg.Ordinal})
		return
	}
	if len(pcm) == 0 {
		p.post(event{kind: evSkip, ordinal: seg.Ordinal})
		return
	}
	p.post(event{kind: evUnit, unit: AudioUnit{Ordinal: seg.Ordinal, Text: seg.Text, PCM: pcm}})
}
