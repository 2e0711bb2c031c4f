package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/invoice2csv/internal/common"
)

// Config holds client settings for one OpenAI-compatible endpoint.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client wraps the chat-completions API with retries and usage reporting.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient builds a Client. A nil logger falls back to slog.Default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Chat performs one chat-completion call with the client's retry policy.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	c.log.Info("llm.chat.request",
		"req_id", rid,
		"model", req.Model,
		"messages", len(req.Messages),
		"json_mode", req.JSONMode,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, err := c.sendWithRetry(ctx, rid, endpoint, body, headers)
	if err != nil {
		c.log.Error("llm.chat.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}
	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("response truncated: output token limit reached")
	}

	out := &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   resp.Model,
		Usage:   resp.Usage,
	}
	c.log.Info("llm.chat.ok",
		"req_id", rid,
		"model", out.Model,
		"total_tokens", out.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Vision performs one vision call: the image at imagePath is inlined as a
// base64 data URI next to the text prompt. JSON mode and temperature 0 are
// forced so responses stay deterministic and machine-parseable.
func (c *Client) Vision(ctx context.Context, model, imagePath, prompt string) (*ChatResponse, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", imagePath, err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	blocks := []map[string]any{
		{"type": "text", "text": prompt},
		{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:image/jpeg;base64," + encoded,
			},
		},
	}
	return c.Chat(ctx, ChatRequest{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: blocks}},
		JSONMode:    true,
		Temperature: 0,
	})
}

// DecodeJSONContent parses the message content as a JSON object. A parse
// failure wraps common.ErrResponseFormat and carries the raw content for
// diagnosis; the content is never silently dropped.
func DecodeJSONContent(resp *ChatResponse, out any) error {
	if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
		return fmt.Errorf("%w: %v (raw: %s)", common.ErrResponseFormat, err, truncate(resp.Content, 500))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
