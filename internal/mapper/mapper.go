package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerline/invoice2csv/internal/common"
	"github.com/ledgerline/invoice2csv/internal/extract"
	"github.com/ledgerline/invoice2csv/internal/llm"
	"github.com/ledgerline/invoice2csv/internal/schema"
)

// Row maps each schema header to a single scalar value. Missing values are
// nil, never absent: after post-processing the key set equals the schema's
// header set exactly.
type Row map[string]any

// Scores maps each schema header to a confidence in [0, 1]. Same key-set
// invariant as Row.
type Scores map[string]float64

const mapSystemPrompt = `You are a data mapping expert. Your task is to map extracted invoice data to CSV column headers based on semantic meaning, not exact string matching.

You will receive:
1. Extracted invoice data (JSON)
2. CSV schema with semantic meanings for each column

Your job is to:
- Match invoice fields to CSV columns by meaning
- Fill in values for all CSV columns
- Assign confidence scores (0.0 to 1.0) for each mapping
- Use null for missing values
- Aggregate line items if needed (e.g., sum quantities, concatenate descriptions)

Return a JSON object with this structure:
{
  "mapped_data": {
    "column_header_1": "mapped_value or null",
    "column_header_2": "mapped_value or null"
  },
  "confidence_scores": {
    "column_header_1": 0.95,
    "column_header_2": 0.80
  },
  "mapping_explanations": {
    "column_header_1": "brief explanation of mapping"
  }
}

Confidence scores:
- 1.0: Perfect match, exact field found
- 0.8-0.9: Strong semantic match
- 0.6-0.7: Reasonable match with some inference
- 0.4-0.5: Weak match, significant inference
- 0.0-0.3: No match found, null value`

// mapResponseSchema checks that both required top-level objects are present
// before we decode. Header completeness is enforced locally afterwards.
func mapResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"mapped_data", "confidence_scores"},
		"properties": map[string]any{
			"mapped_data":          map[string]any{"type": "object"},
			"confidence_scores":    map[string]any{"type": "object"},
			"mapping_explanations": map[string]any{"type": "object"},
		},
	}
}

// Mapper aligns extracted invoice data with the template schema.
type Mapper struct {
	client llm.ChatClient
	model  string
	log    *slog.Logger
}

// NewMapper builds a Mapper using the given model for mapping calls.
func NewMapper(client llm.ChatClient, model string, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{client: client, model: model, log: logger}
}

// Result carries the mapper's post-processed output for one document.
type Result struct {
	Row          Row
	Scores       Scores
	Explanations map[string]string
}

// Map asks the LLM for column-to-value mappings and then enforces the local
// invariants the model is not trusted with: every schema header present
// (missing ones become nil with confidence 0.0), every confidence clamped to
// [0, 1], non-numeric confidences coerced to 0.0.
func (m *Mapper) Map(ctx context.Context, data *extract.InvoiceData, cols []schema.Column) (*Result, llm.Usage, error) {
	start := time.Now()

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("encode extracted data: %w", err)
	}

	userPrompt := fmt.Sprintf(`Map this extracted invoice data to the CSV schema:

EXTRACTED INVOICE DATA:
%s

CSV SCHEMA:
%s

Perform semantic mapping and return the mapped data with confidence scores.`, payload, schema.DescribeColumns(cols))

	resp, err := m.client.Chat(ctx, llm.ChatRequest{
		Model: m.model,
		Messages: []llm.Message{
			{Role: "system", Content: mapSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		JSONMode:    true,
		Temperature: 0,
	})
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("mapping call: %w", err)
	}

	if err := llm.ValidateJSONAgainstSchema(mapResponseSchema(), []byte(resp.Content)); err != nil {
		return nil, resp.Usage, fmt.Errorf("%w: %v", common.ErrMalformedMapping, err)
	}

	var parsed struct {
		MappedData       map[string]any    `json:"mapped_data"`
		ConfidenceScores map[string]any    `json:"confidence_scores"`
		Explanations     map[string]string `json:"mapping_explanations"`
	}
	if err := llm.DecodeJSONContent(resp, &parsed); err != nil {
		return nil, resp.Usage, err
	}

	row, scores := Normalize(parsed.MappedData, parsed.ConfidenceScores, cols)

	m.log.Info("mapper.ok",
		"columns", len(cols),
		"total_tokens", resp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Row: row, Scores: scores, Explanations: parsed.Explanations}, resp.Usage, nil
}

// Normalize applies the post-processing invariants to a raw mapping response.
// The returned row and score maps have exactly the schema's header set as
// keys; headers outside the schema are discarded.
func Normalize(mapped map[string]any, confidences map[string]any, cols []schema.Column) (Row, Scores) {
	row := make(Row, len(cols))
	scores := make(Scores, len(cols))

	for _, col := range cols {
		h := col.Header

		v, ok := mapped[h]
		if !ok {
			row[h] = nil
			scores[h] = 0.0
			continue
		}
		row[h] = v
		scores[h] = clampScore(confidences[h])
	}
	return row, scores
}

// clampScore coerces an arbitrary JSON value into [0, 1]. Non-numeric values
// become 0.0 rather than an error.
func clampScore(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0.0
		}
		f = parsed
	default:
		return 0.0
	}
	if f < 0.0 {
		return 0.0
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}
