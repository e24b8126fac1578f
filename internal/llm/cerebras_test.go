package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCerebras_NoKey(t *testing.T) {
	c := NewCerebrasClient("", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	chunks, errCh := c.Stream(ctx, "hi")
	for range chunks {
		t.Fatalf("no chunks expected with missing key")
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func rewireTo(srv *httptest.Server) *http.Client {
	return &http.Client{Timeout: 2 * time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
}

func TestCerebras_StreamFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_event_json", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte("data: not-json\n"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewCerebrasClient("key", "model")
			c.HTTPClient = rewireTo(srv)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			chunks, errCh := c.Stream(ctx, "hi")
			for range chunks {
				t.Fatalf("no chunks expected on failure")
			}
			if err := <-errCh; err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestCerebras_StreamEmptyChoicesIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[]}\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()
	c := NewCerebrasClient("key", "model")
	c.HTTPClient = rewireTo(srv)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	chunks, errCh := c.Stream(ctx, "hi")
	var got string
	for chunk := range chunks {
		got += chunk
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("stream = %q, want %q", got, "ok")
	}
}

func TestCerebras_StreamConcatenatesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"choices":[{"delta":{"content":"Photosynthesis is"}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":" a process."}}]}`,
			`data: {"choices":[{"delta":{"content":" It uses sunlight."}}]}`,
			`data: [DONE]`,
		}
		for _, e := range events {
			_, _ = w.Write([]byte(e + "\n"))
		}
	}))
	defer srv.Close()

	c := NewCerebrasClient("key", "model")
	c.HTTPClient = rewireTo(srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	chunks, errCh := c.Stream(ctx, "how do plants make food")
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	got := b.String()
	want := "Photosynthesis is a process. It uses sunlight."
	if got != want {
		t.Fatalf("stream concat = %q, want %q", got, want)
	}
}

func TestCerebras_StreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := NewCerebrasClient("key", "model")
	c.HTTPClient = rewireTo(srv)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	chunks, errCh := c.Stream(ctx, "hi")
	for range chunks {
		t.Fatalf("no chunks expected on error status")
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected stream error")
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
