package capture

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// AssemblyAIService streams microphone PCM to AssemblyAI's v3 realtime API
// and emits transcript deltas.
type AssemblyAIService struct {
	apiKey    string
	conn      *websocket.Conn
	deltas    chan Delta
	audioData chan []byte
	stopCh    chan struct{}
	doneCh    chan struct{}
	doneOnce  sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	connected bool

	accMu         sync.Mutex
	lastVoiceTime time.Time
}

// AssemblyAI message types
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewAssemblyAIService creates a new capture source.
func NewAssemblyAIService(apiKey string) *AssemblyAIService {
	return &AssemblyAIService{
		apiKey:    apiKey,
		deltas:    make(chan Delta, 100),
		audioData: make(chan []byte, 1000),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (s *AssemblyAIService) Deltas() <-chan Delta { return s.deltas }

func (s *AssemblyAIService) Done() <-chan struct{} { return s.doneCh }

// Start establishes the WebSocket connection to AssemblyAI. It fails with
// ErrCaptureUnavailable before emitting anything if the resource cannot be
// acquired.
func (s *AssemblyAIService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("%w: AssemblyAI API key is empty", ErrCaptureUnavailable)
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	headers := map[string][]string{"Authorization": {s.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("capture: AssemblyAI connection failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	s.conn = conn
	s.connected = true
	s.lastVoiceTime = time.Now()

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("capture: connected to AssemblyAI streaming service")
	return nil
}

// Feed queues audio data for the recognizer.
func (s *AssemblyAIService) Feed(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("capture: not connected")
	}
	s.detectVoiceActivity(pcm)
	select {
	case s.audioData <- pcm:
	default:
		log.Println("capture: audio buffer full, dropping packet")
	}
	return nil
}

// detectVoiceActivity updates lastVoiceTime if the buffer carries voice
// energy above a threshold. Expects 16-bit little-endian PCM mono at 16 kHz.
func (s *AssemblyAIService) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// RecentlyDetectedVoice reports whether non-silent voice energy was observed
// within the given window.
func (s *AssemblyAIService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Stop terminates the session and releases the connection. Idempotent.
func (s *AssemblyAIService) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.stopCh)
		if s.conn != nil {
			terminateMsg := map[string]string{"type": "Terminate"}
			_ = s.conn.WriteJSON(terminateMsg)
			_ = s.conn.Close()
		}
		s.connected = false
		s.conn = nil
		s.mu.Unlock()
		s.markDone()
		log.Println("capture: AssemblyAI connection closed")
	})
	return nil
}

func (s *AssemblyAIService) markDone() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

func (s *AssemblyAIService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("capture: recovered from panic in handleMessages: %v", r)
		}
	}()
	defer s.markDone()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-s.stopCh:
				default:
					log.Printf("capture: error reading message: %v", err)
				}
				return
			}
			if ended := s.processMessage(message); ended {
				return
			}
		}
	}
}

// processMessage handles one message from AssemblyAI. It reports true when
// the remote session has terminated.
func (s *AssemblyAIService) processMessage(message []byte) bool {
	var baseMsg map[string]interface{}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		log.Printf("capture: error unmarshaling message: %v", err)
		return false
	}
	msgType, ok := baseMsg["type"].(string)
	if !ok {
		log.Printf("capture: message missing type field")
		return false
	}
	switch msgType {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("capture: error unmarshaling Begin message: %v", err)
			return false
		}
		expires := time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339)
		log.Printf("capture: AssemblyAI session began: ID=%s, ExpiresAt=%s", msg.ID, expires)
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("capture: error unmarshaling Turn message: %v", err)
			return false
		}
		if msg.Transcript != "" {
			select {
			case s.deltas <- Delta{Text: msg.Transcript, Final: msg.EndOfTurn}:
			default:
				// a newer delta supersedes a dropped interim one
			}
		}
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("capture: error unmarshaling Termination message: %v", err)
			return false
		}
		log.Printf("capture: AssemblyAI session terminated: AudioDuration=%.2fs, SessionDuration=%.2fs",
			msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		return true
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("capture: error unmarshaling Error message: %v", err)
			return false
		}
		log.Printf("capture: AssemblyAI error: %s", msg.Error)
	default:
		log.Printf("capture: unknown message type: %s", msgType)
	}
	return false
}

func (s *AssemblyAIService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("capture: recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audioData := <-s.audioData:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
				log.Printf("capture: error sending audio data: %v", err)
				return
			}
		}
	}
}
