// Package roleauthor turns natural-language role descriptions into candidate
// permission matrices using a chat-completion model, then validates the result
// against the canonical vocabulary before anything is persisted.
package roleauthor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Generator produces a raw model completion for a synthesis prompt. The
// completion is untrusted; the synthesizer validates everything it contains.
type Generator interface {
	GenerateMatrix(ctx context.Context, prompt string) ([]byte, error)
}

// HTTPGeneratorConfig configures the chat-completion client.
type HTTPGeneratorConfig struct {
	// Endpoint is the chat completions URL, e.g.
	// https://api.openai.com/v1/chat/completions or a compatible proxy.
	Endpoint string

	// APIKey is sent as a bearer token. Empty is allowed for local models.
	APIKey string

	// Model is the model identifier requested from the endpoint.
	Model string

	// MaxTries bounds retry attempts for transient failures. Default: 4
	MaxTries uint

	// RequestTimeout is the per-attempt timeout. Default: 30s
	RequestTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *HTTPGeneratorConfig) ApplyDefaults() {
	if c.MaxTries == 0 {
		c.MaxTries = 4
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Validate checks that the generator configuration is valid.
func (c *HTTPGeneratorConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("generator endpoint is required")
	}
	if c.Model == "" {
		return fmt.Errorf("generator model is required")
	}
	return nil
}

// HTTPGenerator implements Generator against an OpenAI-compatible chat
// completions endpoint, retrying transient failures with exponential backoff.
type HTTPGenerator struct {
	cfg    HTTPGeneratorConfig
	client *http.Client
}

// NewHTTPGenerator creates a generator client.
func NewHTTPGenerator(cfg HTTPGeneratorConfig) (*HTTPGenerator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}

	return &HTTPGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateMatrix sends the prompt and returns the raw completion text.
// Client errors (4xx) are permanent; server and transport errors are retried.
func (g *HTTPGenerator) GenerateMatrix(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generator request: %w", err)
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("generator request failed: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read generator response: %w", err)
		}

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(fmt.Errorf("generator returned status %d: %s", resp.StatusCode, payload))
		}

		return payload, nil
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(g.cfg.MaxTries),
	)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode generator response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("generator returned no choices")
	}

	log.Debug().
		Str("model", g.cfg.Model).
		Int("bytes", len(parsed.Choices[0].Message.Content)).
		Msg("Received matrix completion")

	return []byte(parsed.Choices[0].Message.Content), nil
}
