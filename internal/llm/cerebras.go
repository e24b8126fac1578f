package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CerebrasClient talks to Cerebras's OpenAI-compatible chat completions API.
type CerebrasClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

const cerebrasEndpoint = "https://api.cerebras.ai/v1/chat/completions"

const systemInstruction = "You are a helpful, concise voice AI tutor. Answer clearly and briefly in plain spoken prose."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Delta        chatMessage `json:"delta"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	return &CerebrasClient{
		// no overall timeout on the client: streamed replies can outlive any
		// fixed budget; callers bound the request with ctx
		HTTPClient: &http.Client{},
		APIKey:     apiKey,
		Model:      model,
	}
}

func (c *CerebrasClient) newRequest(ctx context.Context, prompt string) (*http.Request, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("cerebras api key missing")
	}
	messages := []chatMessage{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: prompt},
	}
	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages, Stream: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cerebrasEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Stream issues a streamed completion and delivers reply text chunks in
// arrival order. The text channel closes when the reply stream ends; a
// request or decode failure is delivered on the error channel instead.
func (c *CerebrasClient) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	chunks := make(chan string, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errCh)

		req, err := c.newRequest(ctx, prompt)
		if err != nil {
			errCh <- err
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			errCh <- fmt.Errorf("cerebras error: status=%d body=%s", resp.StatusCode, string(b))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}
			if payload == "" {
				continue
			}
			var cr chatCompletionsResponse
			if err := json.Unmarshal([]byte(payload), &cr); err != nil {
				errCh <- fmt.Errorf("cerebras: decode stream event: %w", err)
				return
			}
			if len(cr.Choices) == 0 {
				continue
			}
			text := cr.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case chunks <- text:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("cerebras: read stream: %w", err)
		}
	}()
	return chunks, errCh
}
