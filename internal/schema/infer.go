package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ledgerline/invoice2csv/internal/common"
	"github.com/ledgerline/invoice2csv/internal/llm"
)

const inferSystemPrompt = `You are a data schema expert. Your task is to analyze CSV column headers and infer their semantic meaning, data type, and expected format.

For each column header, provide:
1. Semantic meaning (what the column represents)
2. Data type (string, number, date, currency, etc.)
3. Expected format (if applicable, e.g., date format, currency format)
4. Common aliases or alternative names for this field

Return your analysis as a JSON object with this exact structure:
{
  "columns": [
    {
      "header": "original_header_name",
      "semantic_meaning": "clear description of what this field represents",
      "data_type": "string|number|date|currency|email|phone|etc",
      "expected_format": "format description or null",
      "aliases": ["alternative_name1", "alternative_name2"]
    }
  ]
}`

// inferResponseSchema constrains the shape of the inference response before
// we decode it. Only structure is checked here; header coverage is a separate
// local invariant.
func inferResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"columns"},
		"properties": map[string]any{
			"columns": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"header"},
					"properties": map[string]any{
						"header":           map[string]any{"type": "string"},
						"semantic_meaning": map[string]any{"type": "string"},
						"data_type":        map[string]any{"type": "string"},
						"aliases":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
			},
		},
	}
}

// Inferrer asks the LLM to annotate template headers with semantics.
type Inferrer struct {
	client llm.ChatClient
	model  string
	log    *slog.Logger
}

// NewInferrer builds an Inferrer using the given model for inference calls.
func NewInferrer(client llm.ChatClient, model string, logger *slog.Logger) *Inferrer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inferrer{client: client, model: model, log: logger}
}

// Infer annotates each header with semantic meaning, type and aliases.
// The returned column set covers the input header set exactly; a response
// missing headers fails with common.ErrSchemaCoverage naming them. That is
// fatal for the run: every later stage depends on the schema.
func (in *Inferrer) Infer(ctx context.Context, headers []string) ([]Column, llm.Usage, error) {
	start := time.Now()
	in.log.Info("schema.infer.start", "headers", len(headers), "model", in.model)

	userPrompt := fmt.Sprintf(
		"Analyze these CSV column headers and provide semantic schema information:\n\n%s\n\nReturn the JSON schema analysis as specified.",
		strings.Join(headers, ", "),
	)

	resp, err := in.client.Chat(ctx, llm.ChatRequest{
		Model: in.model,
		Messages: []llm.Message{
			{Role: "system", Content: inferSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		JSONMode:    true,
		Temperature: 0,
	})
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("schema inference call: %w", err)
	}

	if err := llm.ValidateJSONAgainstSchema(inferResponseSchema(), []byte(resp.Content)); err != nil {
		return nil, resp.Usage, fmt.Errorf("%w: schema inference response: %v", common.ErrResponseFormat, err)
	}

	var parsed struct {
		Columns []Column `json:"columns"`
	}
	if err := llm.DecodeJSONContent(resp, &parsed); err != nil {
		return nil, resp.Usage, err
	}

	if err := checkCoverage(headers, parsed.Columns); err != nil {
		return nil, resp.Usage, err
	}

	in.log.Info("schema.infer.ok",
		"columns", len(parsed.Columns),
		"total_tokens", resp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return parsed.Columns, resp.Usage, nil
}

// checkCoverage enforces the bijective-coverage invariant: the header set of
// the inferred columns must equal the template's header set.
func checkCoverage(headers []string, cols []Column) error {
	want := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		want[h] = struct{}{}
	}
	got := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		got[c.Header] = struct{}{}
	}

	var missing []string
	for h := range want {
		if _, ok := got[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing headers: %s", common.ErrSchemaCoverage, strings.Join(missing, ", "))
	}
	for h := range got {
		if _, ok := want[h]; !ok {
			return fmt.Errorf("%w: unknown header in response: %s", common.ErrSchemaCoverage, h)
		}
	}
	return nil
}
