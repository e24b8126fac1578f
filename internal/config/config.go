package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	AssemblyAIKey string

	CerebrasKey     string
	CerebrasModelID string

	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramModel     string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	ICEServersJSON string
	AuthPassword   string

	SilenceHold time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
// Missing provider keys degrade the related feature rather than failing
// startup.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - speech capture will not work")
	}

	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	cerebrasModel := os.Getenv("CEREBRAS_MODEL_ID")
	if cerebrasModel == "" {
		cerebrasModel = "llama-4-maverick-17b-128e-instruct"
	}
	if cerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - reply generation will not work")
	}

	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	deepgramModel := os.Getenv("DEEPGRAM_MODEL")
	if deepgramModel == "" {
		deepgramModel = "aura-2-thalia-en"
	}
	if elevenKey == "" && deepgramKey == "" {
		log.Println("Warning: no TTS provider key set - synthesis will not work")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "recordings"
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - turn recordings will not be archived")
	}

	iceJSON := os.Getenv("ICE_SERVERS_JSON")
	if iceJSON == "" {
		iceJSON = `[{"urls":["stun:stun.l.google.com:19302"]}]`
	}

	hold := 5500 * time.Millisecond
	if raw := os.Getenv("SILENCE_HOLD_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			hold = time.Duration(ms) * time.Millisecond
		} else {
			log.Printf("Warning: invalid SILENCE_HOLD_MS=%q - using default", raw)
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s silence_hold=%s", addr, hold)
	return Config{
		HTTPAddress:       addr,
		AssemblyAIKey:     assemblyAIKey,
		CerebrasKey:       cerebrasKey,
		CerebrasModelID:   cerebrasModel,
		ElevenLabsKey:     elevenKey,
		ElevenLabsVoiceID: voiceID,
		DeepgramKey:       deepgramKey,
		DeepgramModel:     deepgramModel,
		SupabaseURL:       supabaseURL,
		SupabaseKey:       supabaseKey,
		SupabaseBucket:    supabaseBucket,
		ICEServersJSON:    iceJSON,
		AuthPassword:      os.Getenv("RTC_AUTH_PASSWORD"),
		SilenceHold:       hold,
	}
}
