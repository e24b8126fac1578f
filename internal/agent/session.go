package agent

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Debottam1234567890/Wispen-sub000/internal/capture"
	"github.com/Debottam1234567890/Wispen-sub000/internal/endpoint"
	"github.com/Debottam1234567890/Wispen-sub000/internal/speech"
)

type msgKind int

const (
	msgListen msgKind = iota
	msgStop
	msgPause
	msgResume
	msgDelta
	msgCaptureEnded
	msgSilence
	msgReplyChunk
	msgReplyClosed
	msgReplyErr
	msgPipelineDone
)

// message is one mailbox entry. Messages produced by a turn's async sources
// carry that turn's id; the loop discards any whose turn is no longer active.
type message struct {
	kind   msgKind
	turnID string
	delta  capture.Delta
	text   string
	err    error
}

// turn owns every resource of one utterance/reply cycle: its capture source,
// its silence detector, its synthesis pipeline, and a context that cancels
// all of the turn's outstanding work at once.
type turn struct {
	id         string
	transcript string
	reply      strings.Builder
	submitted  bool

	source   capture.Source
	detector *endpoint.Detector
	pipeline *speech.Pipeline

	ctx    context.Context
	cancel context.CancelFunc
}

type convTurn struct {
	Role string // "USER" or "ASSISTANT"
	Text string
}

// Session is the turn-taking conversation controller. All state transitions
// run on a single event loop fed by a mailbox, so transitions are atomic
// with respect to each other; capture, the silence timer, the reply stream,
// and synthesis fetches only ever post messages into that loop.
type Session struct {
	newSource func() capture.Source
	llm       LLM
	synth     speech.Synthesizer
	player    speech.Player
	rec       Recorder
	hold      time.Duration

	mailbox chan message
	events  chan Event

	// feedTarget is the active turn's capture source; nil while no turn is
	// listening. Kept outside the loop so Feed never blocks on it.
	feedTarget atomic.Pointer[capture.Source]
	state      atomic.Int32

	// conversation history; touched only by the event loop
	history []convTurn
	paused  bool
	cur     *turn
}

// NewSession constructs a controller. newSource is invoked once per turn to
// acquire a fresh capture resource. rec may be nil.
func NewSession(newSource func() capture.Source, llm LLM, synth speech.Synthesizer, player speech.Player, rec Recorder, hold time.Duration) *Session {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Session{
		newSource: newSource,
		llm:       llm,
		synth:     synth,
		player:    player,
		rec:       rec,
		hold:      hold,
		mailbox:   make(chan message, 256),
		events:    make(chan Event, 256),
	}
}

// Start launches the event loop. The session stops when ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	go s.run(ctx)
}

// Events returns the outward notification stream consumed by the UI layer.
func (s *Session) Events() <-chan Event { return s.events }

// State reports the current phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Listen begins a new turn. Any turn still synthesizing or playing is
// cancelled first.
func (s *Session) Listen() { s.post(message{kind: msgListen}) }

// Stop cancels the active turn from any state. Idempotent.
func (s *Session) Stop() { s.post(message{kind: msgStop}) }

// Pause suspends reply playback in place; the synthesis queue keeps filling.
func (s *Session) Pause() { s.post(message{kind: msgPause}) }

// Resume continues playback from the paused position.
func (s *Session) Resume() { s.post(message{kind: msgResume}) }

// Feed sends user audio to the active turn's recognizer and the archival
// recorder. A no-op while no turn is listening.
func (s *Session) Feed(pcm []byte) {
	src := s.feedTarget.Load()
	if src == nil {
		return
	}
	s.rec.Write(pcm)
	_ = (*src).Feed(pcm)
}

func (s *Session) post(m message) {
	select {
	case s.mailbox <- m:
	default:
		log.Printf("agent: mailbox full, dropping %v message", m.kind)
	}
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		// UI consumer is behind; newer events supersede dropped ones
	}
}

func (s *Session) setState(st State) {
	if State(s.state.Load()) == st {
		return
	}
	s.state.Store(int32(st))
	s.emit(Event{Kind: EventStateChanged, State: st})
}

func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.teardownTurn()
			s.setState(StateIdle)
			return
		case m := <-s.mailbox:
			// stale-result discard: every async message is stamped with its
			// turn id and ignored once that turn is no longer active
			if m.turnID != "" && (s.cur == nil || m.turnID != s.cur.id) {
				continue
			}
			s.handle(ctx, m)
		}
	}
}

func (s *Session) handle(ctx context.Context, m message) {
	switch m.kind {
	case msgListen:
		s.startTurn(ctx)
	case msgStop:
		s.teardownTurn()
		s.setState(StateIdle)
	case msgPause:
		if s.State() == StateSpeaking && s.cur != nil && s.cur.pipeline != nil && !s.paused {
			s.cur.pipeline.Pause()
			s.paused = true
		}
	case msgResume:
		if s.paused && s.cur != nil && s.cur.pipeline != nil {
			s.cur.pipeline.Resume()
			s.paused = false
		}
	case msgDelta:
		if s.State() != StateListening {
			return
		}
		// the recognizer sends full-transcript snapshots; the latest wins
		s.cur.transcript = m.delta.Text
		s.cur.detector.Reset()
		s.emit(Event{Kind: EventTranscriptUpdated, Text: m.delta.Text})
	case msgSilence:
		if s.State() == StateListening {
			s.submit()
		}
	case msgCaptureEnded:
		if s.State() != StateListening {
			return
		}
		if strings.TrimSpace(s.cur.transcript) == "" {
			// nothing to submit
			s.teardownTurn()
			s.setState(StateIdle)
			return
		}
		s.submit()
	case msgReplyChunk:
		s.onReplyChunk(m.text)
	case msgReplyClosed:
		s.onReplyClosed()
	case msgReplyErr:
		log.Printf("agent: turn %s submission failed: %v", m.turnID, m.err)
		s.emit(Event{Kind: EventError, ErrKind: ErrKindSubmissionFailed, Message: m.err.Error()})
		s.teardownTurn()
		s.setState(StateIdle)
	case msgPipelineDone:
		if s.State() == StateSpeaking {
			s.finishTurn()
		}
	}
}

// startTurn acquires a fresh capture resource and enters Listening. The
// silence detector stays unarmed until the first transcript delta.
func (s *Session) startTurn(ctx context.Context) {
	s.teardownTurn()

	t := &turn{
		id:       uuid.NewString(),
		source:   s.newSource(),
		detector: endpoint.New(s.hold),
	}
	t.ctx, t.cancel = context.WithCancel(ctx)

	s.rec.Begin(t.id)
	if err := t.source.Start(); err != nil {
		log.Printf("agent: turn %s capture start failed: %v", t.id, err)
		t.cancel()
		s.rec.Finish()
		s.emit(Event{Kind: EventError, ErrKind: ErrKindCaptureUnavailable, Message: err.Error()})
		s.setState(StateIdle)
		return
	}

	s.cur = t
	s.paused = false
	s.feedTarget.Store(&t.source)

	// pump capture deltas and end-of-stream into the mailbox
	go func(t *turn) {
		for {
			select {
			case <-t.ctx.Done():
				return
			case d, ok := <-t.source.Deltas():
				if !ok {
					return
				}
				s.post(message{kind: msgDelta, turnID: t.id, delta: d})
			case <-t.source.Done():
				s.post(message{kind: msgCaptureEnded, turnID: t.id})
				return
			}
		}
	}(t)

	// watch the silence detector
	go func(t *turn) {
		select {
		case <-t.ctx.Done():
		case <-t.detector.Fired():
			s.post(message{kind: msgSilence, turnID: t.id})
		}
	}(t)

	s.setState(StateListening)
	s.emit(Event{Kind: EventTranscriptUpdated, Text: ""})
}

// submit freezes the transcript, releases the capture resource, and sends
// the utterance to the assistant. The submitted guard makes the race between
// silence expiry and natural recognition end harmless: whichever message
// reaches the mailbox first wins, the other is a no-op.
func (s *Session) submit() {
	t := s.cur
	if t.submitted {
		return
	}
	t.submitted = true

	t.detector.Cancel()
	s.feedTarget.Store(nil)
	_ = t.source.Stop()
	s.rec.Finish()

	frozen := strings.TrimSpace(t.transcript)
	t.transcript = frozen
	log.Printf("agent: turn %s heard: %s", t.id, frozen)

	s.setState(StateProcessing)

	prompt := s.buildConversationPrompt(frozen)
	go func(t *turn) {
		chunks, errCh := s.llm.Stream(t.ctx, prompt)
		for chunk := range chunks {
			s.post(message{kind: msgReplyChunk, turnID: t.id, text: chunk})
		}
		if err := <-errCh; err != nil {
			s.post(message{kind: msgReplyErr, turnID: t.id, err: err})
			return
		}
		s.post(message{kind: msgReplyClosed, turnID: t.id})
	}(t)
}

// onReplyChunk starts the synthesis/playback pipeline on the first chunk and
// feeds it every chunk in arrival order.
func (s *Session) onReplyChunk(chunk string) {
	t := s.cur
	if s.State() == StateProcessing {
		t.pipeline = speech.NewPipeline(t.ctx, s.synth, s.player)
		s.setState(StateSpeaking)
		go func(t *turn) {
			select {
			case <-t.ctx.Done():
			case <-t.pipeline.Done():
				s.post(message{kind: msgPipelineDone, turnID: t.id})
			}
		}(t)
	}
	if s.State() != StateSpeaking {
		return
	}
	t.reply.WriteString(chunk)
	t.pipeline.Feed(chunk)
	s.emit(Event{Kind: EventReplyTextUpdated, Text: t.reply.String()})
}

// onReplyClosed ends pipeline input; with no reply text at all the turn
// finishes immediately rather than waiting on an empty pipeline.
func (s *Session) onReplyClosed() {
	t := s.cur
	if t.pipeline == nil {
		// reply stream closed with zero chunks
		s.finishTurn()
		return
	}
	t.pipeline.CloseInput()
	s.appendExchange(t.transcript, strings.TrimSpace(t.reply.String()))
}

// finishTurn returns to Idle, ready for the next utterance.
func (s *Session) finishTurn() {
	s.teardownTurn()
	s.setState(StateIdle)
}

// teardownTurn releases every resource the active turn owns. Safe to call
// with no active turn and safe to call repeatedly.
func (s *Session) teardownTurn() {
	t := s.cur
	if t == nil {
		return
	}
	s.cur = nil
	if s.paused {
		// the player outlives the turn; leaving it paused would freeze the
		// next turn's playback in place forever
		s.player.Resume()
		s.paused = false
	}
	s.feedTarget.Store(nil)
	t.detector.Cancel()
	t.cancel()
	if t.pipeline != nil {
		t.pipeline.Cancel()
	}
	_ = t.source.Stop()
	s.rec.Finish()
}

// buildConversationPrompt formats all previous turns plus the latest user
// text with [USER]/[ASSISTANT] labels.
func (s *Session) buildConversationPrompt(latestUser string) string {
	var b strings.Builder
	for _, t := range s.history {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(t.Role))
		b.WriteString("] ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString("[USER] ")
	b.WriteString(latestUser)
	return b.String()
}

func (s *Session) appendExchange(user, assistant string) {
	if assistant == "" {
		return
	}
	s.history = append(s.history, convTurn{Role: "USER", Text: user})
	s.history = append(s.history, convTurn{Role: "ASSISTANT", Text: assistant})
}
