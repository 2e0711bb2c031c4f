package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/invoice2csv/internal/common"
)

func chatJSON(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(raw)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, maxRetries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
	}, nil)
}

func TestChatParsesContentAndUsage(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, chatJSON(`{"ok": true}`))
	}, 1)

	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, map[string]any{"type": "json_object"}, gotBody["response_format"])
}

func TestChatRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatJSON("second try"))
	}, 2)

	resp, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "second try", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	_, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransientAPI)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatNonRetryableStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key"}}`)
	}, 3)

	_, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrTransientAPI)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatTruncatedResponseFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"partial"},"finish_reason":"length"}],"usage":{}}`)
	}, 1)

	_, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), "status %d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, shouldRetry(code), "status %d", code)
	}
}

func TestBackoffForIsCapped(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoffFor(0))
	assert.Equal(t, 2*time.Second, backoffFor(1))
	assert.Equal(t, 4*time.Second, backoffFor(2))
	assert.Equal(t, maxBackoff, backoffFor(10))
}

func TestDecodeJSONContentCarriesRawOnFailure(t *testing.T) {
	resp := &ChatResponse{Content: "definitely not json"}
	var out map[string]any

	err := DecodeJSONContent(resp, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrResponseFormat)
	assert.Contains(t, err.Error(), "definitely not json")
}

func TestUsageTotals(t *testing.T) {
	var totals UsageTotals
	totals.Add(Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120})
	totals.Add(Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60})
	totals.Add(Usage{}) // a failure before any API call must not count

	assert.Equal(t, 150, totals.PromptTokens)
	assert.Equal(t, 30, totals.CompletionTokens)
	assert.Equal(t, 180, totals.TotalTokens)
	assert.Equal(t, 2, totals.Calls)

	// gpt-4o-mini pricing: $0.15 / $0.60 per million tokens
	cost := totals.EstimateCostUSD(0.15, 0.60)
	assert.InDelta(t, 150.0/1e6*0.15+30.0/1e6*0.60, cost, 1e-12)
}
