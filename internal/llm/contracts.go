package llm

import "context"

// ChatClient is the consumer-facing slice of Client. Pipeline stages accept
// this interface so tests can script responses.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Vision(ctx context.Context, model, imagePath, prompt string) (*ChatResponse, error)
}

// Message is a single chat message. Content is either a plain string or, for
// vision requests, a slice of content blocks.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatRequest describes one chat-completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	JSONMode    bool
	Temperature float64
}

// ChatResponse is the provider-agnostic result of a chat-completion call.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Usage is the token usage triple reported by the API for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageTotals accumulates token usage and call counts across a run. It is
// threaded through the pipeline explicitly; only the control goroutine
// appends to it.
type UsageTotals struct {
	PromptTokens     int `json:"total_prompt_tokens"`
	CompletionTokens int `json:"total_completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Calls            int `json:"total_calls"`
}

// Add folds one call's usage into the totals. A zero Usage means no API call
// was made (a stage failed before reaching the API) and counts as nothing.
func (t *UsageTotals) Add(u Usage) {
	if u == (Usage{}) {
		return
	}
	t.PromptTokens += u.PromptTokens
	t.CompletionTokens += u.CompletionTokens
	t.TotalTokens += u.TotalTokens
	t.Calls++
}

// EstimateCostUSD approximates the run cost at the given per-million-token
// prices for prompt and completion tokens.
func (t *UsageTotals) EstimateCostUSD(promptPerM, completionPerM float64) float64 {
	return float64(t.PromptTokens)/1_000_000*promptPerM +
		float64(t.CompletionTokens)/1_000_000*completionPerM
}
