package httpserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Debottam1234567890/Wispen-sub000/internal/archive"
	"github.com/Debottam1234567890/Wispen-sub000/internal/config"
	"github.com/Debottam1234567890/Wispen-sub000/internal/rtc"
)

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the HTTP server with routes.
func New(cfg config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	var uploader archive.Uploader
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		store, err := archive.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("archive disabled: %v", err)
		} else {
			uploader = store
		}
	}

	h := rtc.NewHandler(cfg.AssemblyAIKey).
		WithLLM(cfg.CerebrasKey, cfg.CerebrasModelID).
		WithElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID).
		WithDeepgram(cfg.DeepgramKey, cfg.DeepgramModel).
		WithArchive(uploader).
		WithSilenceHold(cfg.SilenceHold)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/call", func(c echo.Context) error {
		if !rtcAuthOK(c.Request(), cfg.AuthPassword) {
			return c.NoContent(http.StatusUnauthorized)
		}
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			log.Printf("invalid offer: %v", err)
			return c.NoContent(http.StatusBadRequest)
		}
		answer, err := h.HandleOffer(c.Request().Context(), offer)
		if err != nil {
			log.Printf("webrtc handle offer failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, answer)
	})

	e.GET("/ws", func(c echo.Context) error {
		h.ServeWebSocket(c.Response(), c.Request(), cfg.ICEServersJSON, cfg.AuthPassword)
		return nil
	})

	return &Server{Router: e}
}

// rtcAuthOK accepts the request when no password is configured, or when the
// password arrives via query, bearer token, or X-Auth-Token header.
func rtcAuthOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == expected {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == expected {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == expected {
		return true
	}
	return false
}
