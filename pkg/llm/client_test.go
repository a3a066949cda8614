package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoo-agent/evoo/pkg/version"
)

func chatHandler(t *testing.T, reply string, failures *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if failures != nil && failures.Load() > 0 {
			failures.Add(-1)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, version.Full(), r.Header.Get("User-Agent"))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestHTTPClient_Complete(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "hello", nil))
	defer server.Close()

	client := NewHTTPClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, slog.Default())

	response, err := client.Complete(context.Background(), Request{
		System: "system prompt",
		User:   "user prompt",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", response)
}

func TestHTTPClient_SendsJSONMode(t *testing.T) {
	var sawJSONMode atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ResponseFormat != nil && req.ResponseFormat["type"] == "json_object" {
			sawJSONMode.Store(true)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "{}"}},
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Model: "m"}, slog.Default())
	_, err := client.Complete(context.Background(), Request{User: "u", JSONMode: true})
	require.NoError(t, err)
	assert.True(t, sawJSONMode.Load())
}

func TestHTTPClient_HeartbeatBeforeEachAttempt(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	server := httptest.NewServer(chatHandler(t, "recovered", &failures))
	defer server.Close()

	var beats atomic.Int32
	client := NewHTTPClient(Config{
		BaseURL:     server.URL,
		Model:       "m",
		MaxAttempts: 3,
		Heartbeat:   func() { beats.Add(1) },
	}, slog.Default())

	// Shrink the wall-clock cost of the backoff by running with a deadline
	// comfortably above one backoff step.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	response, err := client.Complete(ctx, Request{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", response)
	assert.Equal(t, int32(2), beats.Load())
}

func TestHTTPClient_ExhaustsAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Model: "m", MaxAttempts: 1}, slog.Default())
	_, err := client.Complete(context.Background(), Request{User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestHTTPClient_CanceledContext(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "never", nil))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Model: "m"}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, Request{User: "u"})
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestMockClient_Script(t *testing.T) {
	mock := &MockClient{Responses: []string{"one", "two"}}

	r1, err := mock.Complete(context.Background(), Request{User: "a"})
	require.NoError(t, err)
	r2, err := mock.Complete(context.Background(), Request{User: "b"})
	require.NoError(t, err)
	r3, err := mock.Complete(context.Background(), Request{User: "c"})
	require.NoError(t, err)

	assert.Equal(t, "one", r1)
	assert.Equal(t, "two", r2)
	assert.Equal(t, "two", r3)
	assert.Equal(t, 3, mock.CallCount())
}
