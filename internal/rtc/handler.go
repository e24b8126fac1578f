package rtc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"

	"github.com/Debottam1234567890/Wispen-sub000/internal/agent"
	"github.com/Debottam1234567890/Wispen-sub000/internal/archive"
	"github.com/Debottam1234567890/Wispen-sub000/internal/capture"
	"github.com/Debottam1234567890/Wispen-sub000/internal/llm"
	"github.com/Debottam1234567890/Wispen-sub000/internal/speech"
	"github.com/Debottam1234567890/Wispen-sub000/internal/tts"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// outboundEvent is the wire form of agent events relayed to the client over
// the "events" data channel.
type outboundEvent struct {
	Type    string `json:"type"`
	State   string `json:"state,omitempty"`
	Text    string `json:"text,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler manages WebRTC peer connections and wires each one to its own
// conversation session.
type Handler struct {
	assemblyAIKey string

	cerebrasKey string
	llmModel    string

	elevenKey     string
	elevenVoiceID string
	deepgramKey   string
	deepgramModel string

	uploader    archive.Uploader
	silenceHold time.Duration
}

func NewHandler(assemblyAIKey string) *Handler {
	return &Handler{assemblyAIKey: assemblyAIKey}
}

func (h *Handler) WithLLM(apiKey, model string) *Handler {
	h.cerebrasKey, h.llmModel = apiKey, model
	return h
}

func (h *Handler) WithElevenLabs(apiKey, voiceID string) *Handler {
	h.elevenKey, h.elevenVoiceID = apiKey, voiceID
	return h
}

func (h *Handler) WithDeepgram(apiKey, model string) *Handler {
	h.deepgramKey, h.deepgramModel = apiKey, model
	return h
}

func (h *Handler) WithArchive(uploader archive.Uploader) *Handler {
	h.uploader = uploader
	return h
}

func (h *Handler) WithSilenceHold(d time.Duration) *Handler {
	h.silenceHold = d
	return h
}

// synthesizer picks the configured synthesis backend; ElevenLabs when a
// voice is configured, Deepgram otherwise.
func (h *Handler) synthesizer() speech.Synthesizer {
	if h.elevenKey != "" && h.elevenVoiceID != "" {
		return tts.NewElevenLabsClient(h.elevenKey, h.elevenVoiceID)
	}
	return tts.NewDeepgramClient(h.deepgramKey, h.deepgramModel)
}

// HandleOffer accepts an SDP offer and returns an SDP answer, standing up
// the full voice pipeline for the connection's lifetime.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	callID := uuid.NewString()

	peerConnection, outTrack, err := h.createPeer("")
	if err != nil {
		return SessionDescription{}, err
	}

	h.attachSession(callID, peerConnection, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// attachSession wires the peer connection's media and data channels into a
// conversation session. The session itself only starts consuming audio once
// the client sends "listen" on the control channel.
func (h *Handler) attachSession(callID string, peerConnection *webrtc.PeerConnection, outTrack *webrtc.TrackLocalStaticSample) {
	player, err := NewPacedTrackPlayer(outTrack)
	if err != nil {
		log.Printf("[%s] opus encoder error: %v", callID, err)
		return
	}

	recorder := archive.NewRecorder(h.uploader)
	llmClient := llm.NewCerebrasClient(h.cerebrasKey, ifEmpty(h.llmModel, "llama-4-maverick-17b-128e-instruct"))
	newSource := func() capture.Source {
		return capture.NewAssemblyAIService(h.assemblyAIKey)
	}

	sess := agent.NewSession(newSource, llmClient, h.synthesizer(), player, recorder, h.silenceHold)

	sessCtx, cancelSess := context.WithCancel(context.Background())
	sess.Start(sessCtx)

	// Relay outward events to the client.
	eventsDC, err := peerConnection.CreateDataChannel("events", nil)
	if err != nil {
		log.Printf("[%s] events channel error: %v", callID, err)
	}
	go func() {
		for {
			select {
			case <-sessCtx.Done():
				return
			case e := <-sess.Events():
				out := toOutbound(e)
				if e.Kind == agent.EventStateChanged {
					log.Printf("[%s] state: %s", callID, e.State)
				}
				if eventsDC == nil || eventsDC.ReadyState() != webrtc.DataChannelStateOpen {
					continue
				}
				buf, _ := json.Marshal(out)
				_ = eventsDC.SendText(string(buf))
			}
		}
	}()

	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] control channel opened", callID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "listen", "start":
				sess.Listen()
			case "stop", "cancel":
				sess.Stop()
			case "pause":
				sess.Pause()
			case "resume":
				sess.Resume()
			}
		})
	})

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", callID, state.String())
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] remote audio track received: codec=%s", callID, remote.Codec().MimeType)
		dec, derr := opus.NewDecoder(16000, 1)
		if derr != nil {
			log.Printf("[%s] opus decoder error: %v", callID, derr)
			return
		}
		go h.pumpMic(callID, remote, dec, sess)
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] peer connection state: %s", callID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			sess.Stop()
			cancelSess()
			player.FlushTail()
			time.AfterFunc(400*time.Millisecond, func() { _ = peerConnection.Close() })
		}
	})
}

// pumpMic decodes inbound Opus packets to 16kHz s16le PCM and feeds the
// session in fixed-size chunks.
func (h *Handler) pumpMic(callID string, remote *webrtc.TrackRemote, dec *opus.Decoder, sess *agent.Session) {
	const pcm16kChunkBytes = 3200 // 100ms at 16kHz s16le
	pcmSamples := make([]int16, 1920)
	buf := make([]byte, 0, pcm16kChunkBytes*4)
	for {
		pkt, _, readErr := remote.ReadRTP()
		if readErr != nil {
			log.Printf("[%s] RTP read error: %v", callID, readErr)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, decErr := dec.Decode(pkt.Payload, pcmSamples)
		if decErr != nil {
			log.Printf("[%s] opus decode error: %v", callID, decErr)
			continue
		}
		start := len(buf)
		buf = append(buf, make([]byte, n*2)...)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(buf[start+i*2:start+(i+1)*2], uint16(pcmSamples[i]))
		}
		for len(buf) >= pcm16kChunkBytes {
			chunk := make([]byte, pcm16kChunkBytes)
			copy(chunk, buf[:pcm16kChunkBytes])
			sess.Feed(chunk)
			copy(buf, buf[pcm16kChunkBytes:])
			buf = buf[:len(buf)-pcm16kChunkBytes]
		}
	}
}

func toOutbound(e agent.Event) outboundEvent {
	switch e.Kind {
	case agent.EventStateChanged:
		return outboundEvent{Type: "state", State: e.State.String()}
	case agent.EventTranscriptUpdated:
		return outboundEvent{Type: "transcript", Text: e.Text}
	case agent.EventReplyTextUpdated:
		return outboundEvent{Type: "reply", Text: e.Text}
	case agent.EventError:
		return outboundEvent{Type: "error", Kind: e.ErrKind, Message: e.Message}
	default:
		return outboundEvent{Type: "unknown"}
	}
}

func ifEmpty(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
