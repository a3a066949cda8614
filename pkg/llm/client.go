// Package llm provides the chat-completion client the planner, executor,
// and evaluator share. Every caller has a deterministic fallback; a failed
// call degrades the run, it never fails it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evoo-agent/evoo/pkg/version"
)

// ErrCanceled is returned when the context is canceled mid-call. Callers
// must not retry after seeing it.
var ErrCanceled = errors.New("llm call canceled")

// defaults for the retry policy.
const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 120 * time.Second
	backoffStep        = 2 * time.Second
)

// Request is one chat completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Client maps a system prompt + user prompt to a string response.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Heartbeat is invoked before each attempt so a durable scheduler will
// not time the activity out during slow calls.
type Heartbeat func()

// Config wires an HTTPClient to a provider endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxAttempts int
	CallTimeout time.Duration
	Heartbeat   Heartbeat
}

// HTTPClient is the chat-completion implementation over a provider's
// OpenAI-compatible HTTP endpoint.
type HTTPClient struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client for the configured endpoint.
func NewHTTPClient(config Config, logger *slog.Logger) *HTTPClient {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	return &HTTPClient{
		config: config,
		http:   &http.Client{Timeout: config.CallTimeout},
		logger: logger.With("component", "llm"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete performs the call with linear backoff (2s, 4s, 6s) between
// attempts. Cancellation returns ErrCanceled immediately.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %s", ErrCanceled, err)
		}
		if c.config.Heartbeat != nil {
			c.config.Heartbeat()
		}

		response, err := c.call(ctx, req)
		if err == nil {
			return response, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("%w: %s", ErrCanceled, err)
		}
		lastErr = err
		c.logger.Warn("llm call failed",
			"attempt", attempt+1, "max_attempts", c.config.MaxAttempts, "error", err)

		if attempt < c.config.MaxAttempts-1 {
			backoff := time.Duration(attempt+1) * backoffStep
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %s", ErrCanceled, ctx.Err())
			}
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

func (c *HTTPClient) call(ctx context.Context, req Request) (string, error) {
	payload := chatRequest{
		Model:       c.config.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if req.JSONMode {
		payload.ResponseFormat = map[string]any{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.Full())
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat request returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
