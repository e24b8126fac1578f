package rtc

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// signalMessage is a minimal signaling frame.
// Types: "auth", "offer", "answer", "candidate", "ice-complete", "bye", "error".
type signalMessage struct {
	Type string `json:"type"`
	// auth
	Password string `json:"password,omitempty"`
	// offer/answer
	SDP string `json:"sdp,omitempty"`
	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// ServeWebSocket upgrades to WebSocket and performs offer/answer + trickle ICE
// signaling. It expects auth(optional) -> offer -> candidates... and responds
// with answer + candidates. The voice session runs for the connection lifetime.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request, iceServersJSON string, authPassword string) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// Auth via header/query; fall back to an auth frame as the first message.
	if authPassword != "" && !checkAuthHeaderOrQuery(r, authPassword) {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil || mt != websocket.TextMessage {
			_ = writeWSError(conn, errors.New("auth required"))
			return
		}
		var m signalMessage
		if jerr := json.Unmarshal(data, &m); jerr != nil || strings.ToLower(m.Type) != "auth" || m.Password != authPassword {
			_ = writeWSError(conn, errors.New("unauthorized"))
			return
		}
	}

	// Read until the client sends an offer.
	var offerSDP string
	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			log.Printf("ws read error before offer: %v", rerr)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m signalMessage
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		switch strings.ToLower(m.Type) {
		case "offer":
			if m.SDP != "" {
				offerSDP = m.SDP
			}
		case "bye":
			return
		}
		if offerSDP != "" {
			break
		}
	}

	peerConnection, outTrack, err := h.createPeer(iceServersJSON)
	if err != nil {
		_ = writeWSError(conn, err)
		return
	}
	defer func() { _ = peerConnection.Close() }()

	callID := uuid.NewString()

	// Trickle local candidates to the client.
	peerConnection.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			_ = conn.WriteJSON(signalMessage{Type: "ice-complete"})
			return
		}
		init := c.ToJSON()
		_ = conn.WriteJSON(signalMessage{Type: "candidate", Candidate: init.Candidate, SDPMid: init.SDPMid, SDPMLineIndex: init.SDPMLineIndex})
	})

	// Accept remote trickle candidates from the client.
	go func() {
		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			var m signalMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			switch strings.ToLower(m.Type) {
			case "candidate":
				if m.Candidate == "" {
					continue
				}
				_ = peerConnection.AddICECandidate(webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex})
			case "bye":
				_ = peerConnection.Close()
				return
			}
		}
	}()

	// Attach the session before answering so data channels and tracks are
	// handled as soon as the connection comes up.
	h.attachSession(callID, peerConnection, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = writeWSError(conn, err)
		return
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = writeWSError(conn, err)
		return
	}
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = writeWSError(conn, err)
		return
	}
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = writeWSError(conn, errors.New("no local description"))
		return
	}
	if err := conn.WriteJSON(signalMessage{Type: "answer", SDP: local.SDP}); err != nil {
		log.Printf("[%s] ws write answer error: %v", callID, err)
		return
	}

	// Hold the handler until the peer connection winds down.
	for {
		time.Sleep(2 * time.Second)
		state := peerConnection.ConnectionState()
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
			return
		}
	}
}

func checkAuthHeaderOrQuery(r *http.Request, password string) bool {
	if r == nil || password == "" {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == password {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == password {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == password {
		return true
	}
	return false
}

func writeWSError(conn *websocket.Conn, err error) error {
	return conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
}

// createPeer prepares a PeerConnection with default codecs/interceptors and
// the outbound audio track. Session handlers are attached separately.
func (h *Handler) createPeer(iceServersJSON string) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(iceServersJSON)})
	if err != nil {
		return nil, nil, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"tutor-audio", "tutor",
	)
	if err != nil {
		_ = peerConnection.Close()
		return nil, nil, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return nil, nil, err
	}
	return peerConnection, outTrack, nil
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}
