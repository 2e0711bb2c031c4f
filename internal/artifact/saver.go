// Package artifact persists every pipeline stage's raw inputs and outputs as
// timestamped JSON files for later audit. Records are append-only and scoped
// to one run; writing them is best-effort, not a correctness gate.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerline/invoice2csv/internal/confidence"
	"github.com/ledgerline/invoice2csv/internal/llm"
	"github.com/ledgerline/invoice2csv/internal/mapper"
	"github.com/ledgerline/invoice2csv/internal/schema"
)

// Pricing per million tokens used for the summary's cost estimates.
const (
	gpt4oMiniPromptPerM     = 0.15
	gpt4oMiniCompletionPerM = 0.60
	gpt4oPromptPerM         = 2.50
	gpt4oCompletionPerM     = 10.0
)

// Saver writes one JSON artifact per stage per document. The session ID is
// fixed at construction and stamps every filename of the run.
type Saver struct {
	dir     string
	session string
}

// NewSaver creates the artifact directory and fixes the session identifier.
func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Saver{
		dir:     dir,
		session: time.Now().Format("20060102_150405"),
	}, nil
}

// Session returns the run's session identifier.
func (s *Saver) Session() string {
	return s.session
}

// Dir returns the artifact directory.
func (s *Saver) Dir() string {
	return s.dir
}

// SaveSchema persists the inferred template schema.
func (s *Saver) SaveSchema(tpl *schema.Template, usage llm.Usage) (string, error) {
	return s.save(fmt.Sprintf("schema_%s.json", s.session), map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"schema":    tpl,
		"api_usage": usage,
	})
}

// SaveExtraction persists one document's raw extraction payload.
func (s *Saver) SaveExtraction(invoiceName string, data any, usage llm.Usage) (string, error) {
	name := fmt.Sprintf("extraction_%s_%s.json", cleanName(invoiceName), s.session)
	return s.save(name, map[string]any{
		"invoice_file":    invoiceName,
		"timestamp":       time.Now().Format(time.RFC3339),
		"extraction_data": data,
		"api_usage":       usage,
	})
}

// SaveMapping persists one document's mapped row and confidence scores.
func (s *Saver) SaveMapping(invoiceName string, row mapper.Row, scores mapper.Scores, usage llm.Usage) (string, error) {
	name := fmt.Sprintf("mapping_%s_%s.json", cleanName(invoiceName), s.session)
	return s.save(name, map[string]any{
		"invoice_file":      invoiceName,
		"timestamp":         time.Now().Format(time.RFC3339),
		"mapped_data":       row,
		"confidence_scores": scores,
		"api_usage":         usage,
	})
}

// invoiceDigest is the per-document entry in the summary artifact.
type invoiceDigest struct {
	Invoice                string  `json:"invoice"`
	AverageConfidence      float64 `json:"average_confidence"`
	LowConfidenceFields    int     `json:"low_confidence_fields"`
	MediumConfidenceFields int     `json:"medium_confidence_fields"`
}

// SaveSummary persists the run-level roll-up: processed invoices, token
// totals, cost estimates, and a per-invoice confidence digest.
func (s *Saver) SaveSummary(invoices []string, totals llm.UsageTotals, analyses []confidence.Analysis) (string, error) {
	digests := make([]invoiceDigest, 0, len(invoices))
	for i, inv := range invoices {
		d := invoiceDigest{Invoice: inv}
		if i < len(analyses) {
			d.AverageConfidence = analyses[i].Average
			d.LowConfidenceFields = len(analyses[i].Low)
			d.MediumConfidenceFields = len(analyses[i].Medium)
		}
		digests = append(digests, d)
	}

	return s.save(fmt.Sprintf("summary_%s.json", s.session), map[string]any{
		"timestamp":          time.Now().Format(time.RFC3339),
		"session_id":         s.session,
		"total_invoices":     len(invoices),
		"invoices_processed": invoices,
		"total_api_usage":    totals,
		"cost_estimates": map[string]any{
			"gpt_4o_mini": round6(totals.EstimateCostUSD(gpt4oMiniPromptPerM, gpt4oMiniCompletionPerM)),
			"gpt_4o":      round6(totals.EstimateCostUSD(gpt4oPromptPerM, gpt4oCompletionPerM)),
			"note":        "Actual costs depend on model used per call",
		},
		"confidence_summary": digests,
	})
}

// save writes one indented JSON file. Existing records are never rewritten:
// filenames carry the session ID and document name, so each stage of each run
// gets its own file.
func (s *Saver) save(name string, payload map[string]any) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return path, nil
}

// cleanName strips the extension and spaces from an invoice filename so it is
// safe inside an artifact filename.
func cleanName(invoiceName string) string {
	stem := strings.TrimSuffix(invoiceName, filepath.Ext(invoiceName))
	return strings.ReplaceAll(stem, " ", "_")
}

func round6(f float64) float64 {
	return float64(int64(f*1e6+0.5)) / 1e6
}
