package output

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerline/invoice2csv/internal/mapper"
)

// WriterConfig holds output writer settings shared by the CSV and XLSX paths.
type WriterConfig struct {
	Path string
	// Attempts bounds the write retries before falling back to a
	// timestamp-suffixed sibling file.
	Attempts int
	// Backoff is the initial delay between write attempts; it doubles per
	// attempt.
	Backoff time.Duration
}

// CSVWriter serializes mapped rows to a CSV file.
type CSVWriter struct {
	cfg WriterConfig
	log *slog.Logger
}

// NewCSVWriter builds a CSVWriter. A nil logger falls back to slog.Default.
func NewCSVWriter(cfg WriterConfig, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &CSVWriter{cfg: cfg, log: logger}
}

// Write serializes one row per document, columns in header order. When
// scores is non-nil every header is doubled with a <header>_confidence
// column. Rows are normalized to exactly the header set first, so an
// upstream contract violation cannot reach the file. The returned path is
// where the data actually landed, which differs from the configured path
// only when the fallback was taken.
func (w *CSVWriter) Write(headers []string, rows []mapper.Row, scores []mapper.Scores) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to write")
	}
	if scores != nil && len(scores) != len(rows) {
		return "", fmt.Errorf("rows and confidence scores must have same length: %d != %d", len(rows), len(scores))
	}

	record := buildRecords(headers, rows, scores)

	if err := os.MkdirAll(filepath.Dir(w.cfg.Path), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path, err := writeWithFallback(w.cfg, w.log, "csv", func(p string) error {
		return writeRecords(p, record)
	})
	if err != nil {
		return "", err
	}
	w.log.Info("output.csv.written", "path", path, "rows", len(rows))
	return path, nil
}

// FallbackPath returns a sibling of path suffixed with a unix timestamp,
// e.g. final_output.csv -> final_output_1724659200.csv.
func FallbackPath(path string, now time.Time) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%d%s", stem, now.Unix(), ext)
}

func writeRecords(path string, records [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// buildRecords normalizes rows against the header set and renders the full
// record table, header row included.
func buildRecords(headers []string, rows []mapper.Row, scores []mapper.Scores) [][]string {
	outHeaders := headers
	if scores != nil {
		outHeaders = make([]string, 0, len(headers)*2)
		for _, h := range headers {
			outHeaders = append(outHeaders, h, h+"_confidence")
		}
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, outHeaders)

	for i, row := range rows {
		rec := make([]string, 0, len(outHeaders))
		for _, h := range headers {
			rec = append(rec, formatCell(row[h]))
			if scores != nil {
				rec = append(rec, formatScore(scores[i][h]))
			}
		}
		records = append(records, rec)
	}
	return records
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
