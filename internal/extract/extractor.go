package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ledgerline/invoice2csv/constants"
	"github.com/ledgerline/invoice2csv/internal/common"
	"github.com/ledgerline/invoice2csv/internal/ingest"
	"github.com/ledgerline/invoice2csv/internal/llm"
)

// Config holds extractor settings.
type Config struct {
	VisionModel string
	TextModel   string
	// PDFTextChars is the minimum embedded-text length for a PDF to take the
	// text path; shorter PDFs are treated as scanned.
	PDFTextChars int
}

// Extractor turns one invoice document into structured invoice data by
// dispatching on file type.
type Extractor struct {
	client llm.ChatClient
	cfg    Config
	log    *slog.Logger
}

// NewExtractor builds an Extractor. A nil logger falls back to slog.Default.
func NewExtractor(client llm.ChatClient, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PDFTextChars <= 0 {
		cfg.PDFTextChars = 50
	}
	return &Extractor{client: client, cfg: cfg, log: logger}
}

// Extract runs the extraction stage for one document. All calls use strict
// JSON output at temperature 0; content that fails to parse as JSON surfaces
// as common.ErrResponseFormat with the raw body attached.
func (e *Extractor) Extract(ctx context.Context, inv ingest.Invoice) (*InvoiceData, llm.Usage, error) {
	start := time.Now()
	e.log.Info("extract.start", "file", inv.Name, "type", string(inv.Type))

	var (
		resp *llm.ChatResponse
		err  error
	)
	switch inv.Type {
	case constants.FileTypeImage:
		resp, err = e.client.Vision(ctx, e.cfg.VisionModel, inv.Path, BuildVisionPrompt())
	case constants.FileTypePDF:
		resp, err = e.extractPDF(ctx, inv.Path)
	case constants.FileTypeText:
		resp, err = e.extractTextFile(ctx, inv.Path)
	default:
		return nil, llm.Usage{}, fmt.Errorf("%w: %s", common.ErrUnsupportedFileType, inv.Type)
	}
	if err != nil {
		return nil, llm.Usage{}, err
	}

	var data InvoiceData
	if err := llm.DecodeJSONContent(resp, &data); err != nil {
		return nil, resp.Usage, err
	}

	e.log.Info("extract.ok",
		"file", inv.Name,
		"line_items", len(data.LineItems),
		"total_tokens", resp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &data, resp.Usage, nil
}

// extractPDF prefers the embedded text layer; PDFs whose text is at or below
// the threshold are treated as scanned and routed through the vision path.
func (e *Extractor) extractPDF(ctx context.Context, path string) (*llm.ChatResponse, error) {
	text, err := readPDFText(path)
	if err != nil {
		e.log.Warn("extract.pdf.text_layer_unreadable", "path", path, "error", err)
	}
	if trimmed := strings.TrimSpace(text); len(trimmed) > e.cfg.PDFTextChars {
		return e.extractText(ctx, trimmed)
	}

	e.log.Info("extract.pdf.scanned_fallback", "path", path, "text_chars", len(strings.TrimSpace(text)))
	raster, err := renderFirstPage(path)
	if err != nil {
		return nil, fmt.Errorf("scanned pdf fallback: %w", err)
	}
	// The raster must go away on every exit path, vision failure included.
	defer func() {
		if err := os.Remove(raster); err != nil {
			e.log.Warn("extract.pdf.raster_cleanup_failed", "path", raster, "error", err)
		}
	}()

	return e.client.Vision(ctx, e.cfg.VisionModel, raster, BuildVisionPrompt())
}

func (e *Extractor) extractTextFile(ctx context.Context, path string) (*llm.ChatResponse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: text file is empty: %s", common.ErrInvalidInput, path)
	}
	return e.extractText(ctx, text)
}

func (e *Extractor) extractText(ctx context.Context, text string) (*llm.ChatResponse, error) {
	return e.client.Chat(ctx, llm.ChatRequest{
		Model: e.cfg.TextModel,
		Messages: []llm.Message{
			{Role: "system", Content: textSystemPrompt},
			{Role: "user", Content: BuildTextPrompt(text)},
		},
		JSONMode:    true,
		Temperature: 0,
	})
}
