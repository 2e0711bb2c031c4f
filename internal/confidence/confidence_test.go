package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/invoice2csv/internal/mapper"
)

func TestAnalyzeEmptyScores(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())

	got := a.Analyze(mapper.Scores{})

	assert.Zero(t, got.Average)
	assert.Zero(t, got.Min)
	assert.Zero(t, got.Max)
	assert.Empty(t, got.Low)
	assert.Empty(t, got.Medium)
	assert.Empty(t, got.High)
}

func TestAnalyzeBoundaries(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())

	got := a.Analyze(mapper.Scores{
		"at_low":     0.70, // exactly at the low threshold -> medium
		"at_medium":  0.85, // exactly at the medium threshold -> high
		"below_low":  0.6999,
		"below_med":  0.8499,
		"clearly_hi": 0.99,
	})

	assert.Equal(t, []FieldScore{{Header: "below_low", Score: 0.6999}}, got.Low)
	assert.Equal(t, []FieldScore{
		{Header: "at_low", Score: 0.70},
		{Header: "below_med", Score: 0.8499},
	}, got.Medium)
	assert.Equal(t, []FieldScore{
		{Header: "at_medium", Score: 0.85},
		{Header: "clearly_hi", Score: 0.99},
	}, got.High)
}

func TestAnalyzeStats(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())

	got := a.Analyze(mapper.Scores{
		"a": 0.50,
		"b": 0.80,
		"c": 1.00,
	})

	assert.InDelta(t, 0.7666, got.Average, 0.001)
	assert.Equal(t, 0.50, got.Min)
	assert.Equal(t, 1.00, got.Max)
}

func TestAnalyzePartitionsSortedAscending(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())

	got := a.Analyze(mapper.Scores{
		"x": 0.30,
		"y": 0.10,
		"z": 0.20,
	})

	require.Len(t, got.Low, 3)
	assert.Equal(t, "y", got.Low[0].Header)
	assert.Equal(t, "z", got.Low[1].Header)
	assert.Equal(t, "x", got.Low[2].Header)
}

func TestAnalyzeScoresStayInRange(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())

	got := a.Analyze(mapper.Scores{"a": 0.0, "b": 0.5, "c": 1.0})

	for _, part := range [][]FieldScore{got.Low, got.Medium, got.High} {
		for _, fs := range part {
			assert.GreaterOrEqual(t, fs.Score, 0.0)
			assert.LessOrEqual(t, fs.Score, 1.0)
		}
	}
}

func TestSummarizeMeanOfDocumentAverages(t *testing.T) {
	analyses := []Analysis{
		{Average: 0.60, Low: []FieldScore{{Header: "a", Score: 0.1}}},
		{Average: 0.80, Medium: []FieldScore{{Header: "b", Score: 0.75}, {Header: "c", Score: 0.8}}},
		{Average: 1.00},
	}

	got := Summarize(analyses)

	assert.Equal(t, 3, got.Documents)
	assert.InDelta(t, 0.80, got.OverallAverage, 1e-9)
	assert.Equal(t, 1, got.TotalLow)
	assert.Equal(t, 2, got.TotalMedium)
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	assert.Zero(t, got.Documents)
	assert.Zero(t, got.OverallAverage)
}

func TestFormatWarnings(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())

	analysis := a.Analyze(mapper.Scores{"Total": 0.40, "Invoice No": 0.95})
	out := a.FormatWarnings(analysis, "inv-001.pdf")

	assert.Contains(t, out, "inv-001.pdf")
	assert.Contains(t, out, "LOW CONFIDENCE")
	assert.Contains(t, out, "Total: 0.40")
	assert.NotContains(t, out, "Invoice No")

	clean := a.Analyze(mapper.Scores{"Total": 0.95})
	assert.Empty(t, a.FormatWarnings(clean, "inv-001.pdf"))
}
