// Package confidence buckets per-column mapping confidence into tiers and
// aggregates per-document and per-batch statistics. It is the only stage with
// no LLM involvement: pure, deterministic, local.
package confidence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledgerline/invoice2csv/internal/mapper"
)

// Thresholds partition scores into three tiers: below Low, [Low, Medium),
// and at or above Medium. A score exactly at a boundary belongs to the
// higher bucket.
type Thresholds struct {
	Low    float64
	Medium float64
}

// DefaultThresholds matches the shipped configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.70, Medium: 0.85}
}

// FieldScore is one (header, score) pair inside a partition.
type FieldScore struct {
	Header string  `json:"header"`
	Score  float64 `json:"score"`
}

// Analysis is the derived, read-only confidence summary for one document.
type Analysis struct {
	Average float64      `json:"average_confidence"`
	Min     float64      `json:"min_confidence"`
	Max     float64      `json:"max_confidence"`
	Low     []FieldScore `json:"low_confidence_fields"`
	Medium  []FieldScore `json:"medium_confidence_fields"`
	High    []FieldScore `json:"high_confidence_fields"`
}

// Summary aggregates the analyses of a whole batch.
type Summary struct {
	Documents      int     `json:"total_invoices"`
	OverallAverage float64 `json:"overall_average_confidence"`
	TotalLow       int     `json:"total_low_confidence_fields"`
	TotalMedium    int     `json:"total_medium_confidence_fields"`
}

// Analyzer buckets scores against a fixed pair of thresholds.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer builds an Analyzer; zero thresholds fall back to the defaults.
func NewAnalyzer(t Thresholds) *Analyzer {
	if t.Low == 0 && t.Medium == 0 {
		t = DefaultThresholds()
	}
	return &Analyzer{thresholds: t}
}

// Analyze partitions one document's scores. An empty score set yields an
// all-zero analysis with empty partitions, never an error.
func (a *Analyzer) Analyze(scores mapper.Scores) Analysis {
	out := Analysis{
		Low:    []FieldScore{},
		Medium: []FieldScore{},
		High:   []FieldScore{},
	}
	if len(scores) == 0 {
		return out
	}

	first := true
	var sum float64
	for header, score := range scores {
		sum += score
		if first {
			out.Min, out.Max = score, score
			first = false
		} else {
			if score < out.Min {
				out.Min = score
			}
			if score > out.Max {
				out.Max = score
			}
		}

		fs := FieldScore{Header: header, Score: score}
		switch {
		case score < a.thresholds.Low:
			out.Low = append(out.Low, fs)
		case score < a.thresholds.Medium:
			out.Medium = append(out.Medium, fs)
		default:
			out.High = append(out.High, fs)
		}
	}
	out.Average = sum / float64(len(scores))

	sortPartition(out.Low)
	sortPartition(out.Medium)
	sortPartition(out.High)
	return out
}

// sortPartition orders a partition ascending by score, ties by header so the
// output is deterministic.
func sortPartition(p []FieldScore) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].Score != p[j].Score {
			return p[i].Score < p[j].Score
		}
		return p[i].Header < p[j].Header
	})
}

// Summarize reduces a batch of analyses. The overall average is the mean of
// per-document averages, not a token-weighted mean.
func Summarize(analyses []Analysis) Summary {
	s := Summary{Documents: len(analyses)}
	if len(analyses) == 0 {
		return s
	}
	var sum float64
	for _, a := range analyses {
		sum += a.Average
		s.TotalLow += len(a.Low)
		s.TotalMedium += len(a.Medium)
	}
	s.OverallAverage = sum / float64(len(analyses))
	return s
}

// FormatWarnings renders the low/medium partitions of one document as a
// console warning block, or "" when there is nothing to flag.
func (a *Analyzer) FormatWarnings(analysis Analysis, invoiceName string) string {
	var lines []string

	if len(analysis.Low) > 0 {
		lines = append(lines, fmt.Sprintf("  LOW CONFIDENCE (< %.2f):", a.thresholds.Low))
		for _, fs := range analysis.Low {
			lines = append(lines, fmt.Sprintf("   - %s: %.2f", fs.Header, fs.Score))
		}
	}
	if len(analysis.Medium) > 0 {
		lines = append(lines, fmt.Sprintf("  MEDIUM CONFIDENCE (%.2f-%.2f):", a.thresholds.Low, a.thresholds.Medium))
		for _, fs := range analysis.Medium {
			lines = append(lines, fmt.Sprintf("   - %s: %.2f", fs.Header, fs.Score))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return invoiceName + "\n" + strings.Join(lines, "\n")
}
