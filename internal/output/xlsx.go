package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ledgerline/invoice2csv/internal/mapper"
)

const xlsxSheet = "Invoices"

// XLSXWriter serializes mapped rows to an Excel workbook with the same
// normalization and retry-then-fallback contract as the CSV writer.
type XLSXWriter struct {
	cfg WriterConfig
	log *slog.Logger
}

// NewXLSXWriter builds an XLSXWriter. A nil logger falls back to slog.Default.
func NewXLSXWriter(cfg WriterConfig, logger *slog.Logger) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &XLSXWriter{cfg: cfg, log: logger}
}

// Write produces a single-sheet workbook, one row per document, optionally
// doubled with <header>_confidence columns. Like the CSV path, a target that
// stays unwritable after the retry budget lands the workbook at a
// timestamp-suffixed sibling instead of losing the batch.
func (w *XLSXWriter) Write(headers []string, rows []mapper.Row, scores []mapper.Scores) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to write")
	}
	if scores != nil && len(scores) != len(rows) {
		return "", fmt.Errorf("rows and confidence scores must have same length: %d != %d", len(rows), len(scores))
	}

	records := buildRecords(headers, rows, scores)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("drop default sheet: %w", err)
	}

	for r, rec := range records {
		for c, v := range rec {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(xlsxSheet, cell, v); err != nil {
				return "", err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(w.cfg.Path), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path, err := writeWithFallback(w.cfg, w.log, "xlsx", func(p string) error {
		return f.SaveAs(p)
	})
	if err != nil {
		return "", err
	}
	w.log.Info("output.xlsx.written", "path", path, "rows", len(rows))
	return path, nil
}
