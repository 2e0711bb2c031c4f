// Package pipeline drives one run: schema inference once, then each document
// through extract, map and analyze, then a single output write plus audit
// artifacts. Documents are processed sequentially in input order; token
// totals and the row list are appended only by this control flow, so no
// locking is needed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ledgerline/invoice2csv/constants"
	"github.com/ledgerline/invoice2csv/internal/artifact"
	"github.com/ledgerline/invoice2csv/internal/confidence"
	"github.com/ledgerline/invoice2csv/internal/extract"
	"github.com/ledgerline/invoice2csv/internal/ingest"
	"github.com/ledgerline/invoice2csv/internal/llm"
	"github.com/ledgerline/invoice2csv/internal/mapper"
	"github.com/ledgerline/invoice2csv/internal/runlog"
	"github.com/ledgerline/invoice2csv/internal/schema"
)

// Writer serializes the accumulated batch; both output formats satisfy it.
type Writer interface {
	Write(headers []string, rows []mapper.Row, scores []mapper.Scores) (string, error)
}

// Pipeline wires the stages together for one run.
type Pipeline struct {
	inferrer  *schema.Inferrer
	extractor *extract.Extractor
	mapper    *mapper.Mapper
	analyzer  *confidence.Analyzer
	writer    Writer
	artifacts *artifact.Saver
	ledger    *runlog.Store // optional
	log       *slog.Logger
}

// New assembles a Pipeline. The ledger may be nil; everything else is
// required.
func New(
	inferrer *schema.Inferrer,
	extractor *extract.Extractor,
	mapper *mapper.Mapper,
	analyzer *confidence.Analyzer,
	writer Writer,
	artifacts *artifact.Saver,
	ledger *runlog.Store,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		inferrer:  inferrer,
		extractor: extractor,
		mapper:    mapper,
		analyzer:  analyzer,
		writer:    writer,
		artifacts: artifacts,
		ledger:    ledger,
		log:       logger,
	}
}

// DocumentResult is the outcome for one input document.
type DocumentResult struct {
	Name     string
	Status   constants.DocStatus
	Err      string
	Analysis confidence.Analysis
}

// Result is the outcome of one run.
type Result struct {
	Headers    []string
	Columns    []schema.Column
	Rows       []mapper.Row
	Scores     []mapper.Scores
	Analyses   []confidence.Analysis
	Documents  []DocumentResult
	Summary    confidence.Summary
	Totals     llm.UsageTotals
	OutputPath string
}

// Run executes the full pipeline over the given documents. Schema inference
// failure aborts the run; per-document failures mark that document FAILED,
// contribute no row, and let the batch continue. No partial row is ever
// written for a failed document.
func (p *Pipeline) Run(ctx context.Context, templatePath string, invoices []ingest.Invoice) (*Result, error) {
	headers, err := schema.ReadTemplateHeaders(templatePath)
	if err != nil {
		return nil, err
	}

	res := &Result{Headers: headers}
	session := p.artifacts.Session()

	if p.ledger != nil {
		if err := p.ledger.StartRun(ctx, session, templatePath, dirOf(invoices)); err != nil {
			p.log.Warn("pipeline.ledger.start_failed", "error", err)
		}
	}

	cols, usage, err := p.inferrer.Infer(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("schema inference: %w", err)
	}
	res.Columns = cols
	res.Totals.Add(usage)

	tpl := &schema.Template{Headers: headers, Columns: cols}
	if _, err := p.artifacts.SaveSchema(tpl, usage); err != nil {
		p.log.Warn("pipeline.artifact.schema_failed", "error", err)
	}

	var processed []string
	for i, inv := range invoices {
		p.log.Info("pipeline.document.start", "index", i+1, "total", len(invoices), "file", inv.Name)
		p.record(ctx, session, inv.Name, constants.DocStatusPending, "")

		doc := p.processDocument(ctx, session, inv, cols, res)
		res.Documents = append(res.Documents, doc)
		if doc.Status == constants.DocStatusFailed {
			continue
		}
		processed = append(processed, inv.Name)
	}

	if len(res.Rows) > 0 {
		path, err := p.writer.Write(headers, res.Rows, res.Scores)
		if err != nil {
			return res, fmt.Errorf("write output: %w", err)
		}
		res.OutputPath = path
		for i := range res.Documents {
			if res.Documents[i].Status != constants.DocStatusFailed {
				res.Documents[i].Status = constants.DocStatusWritten
				p.record(ctx, session, res.Documents[i].Name, constants.DocStatusWritten, "")
			}
		}
	}

	res.Summary = confidence.Summarize(res.Analyses)
	if _, err := p.artifacts.SaveSummary(processed, res.Totals, res.Analyses); err != nil {
		p.log.Warn("pipeline.artifact.summary_failed", "error", err)
	}

	p.log.Info("pipeline.run.complete",
		"session", session,
		"documents", len(invoices),
		"rows", len(res.Rows),
		"failed", len(invoices)-len(processed),
		"total_tokens", res.Totals.TotalTokens,
	)
	return res, nil
}

// processDocument runs extract -> map -> analyze for one document and
// appends its row on success.
func (p *Pipeline) processDocument(ctx context.Context, session string, inv ingest.Invoice, cols []schema.Column, res *Result) DocumentResult {
	doc := DocumentResult{Name: inv.Name}

	p.record(ctx, session, inv.Name, constants.DocStatusExtracting, "")
	data, exUsage, err := p.extractor.Extract(ctx, inv)
	res.Totals.Add(exUsage)
	if err != nil {
		p.log.Error("pipeline.document.extract_failed", "file", inv.Name, "error", err)
		p.record(ctx, session, inv.Name, constants.DocStatusFailed, err.Error())
		doc.Status = constants.DocStatusFailed
		doc.Err = err.Error()
		return doc
	}
	p.record(ctx, session, inv.Name, constants.DocStatusExtracted, "")
	if _, err := p.artifacts.SaveExtraction(inv.Name, data, exUsage); err != nil {
		p.log.Warn("pipeline.artifact.extraction_failed", "file", inv.Name, "error", err)
	}

	p.record(ctx, session, inv.Name, constants.DocStatusMapping, "")
	mapped, mapUsage, err := p.mapper.Map(ctx, data, cols)
	res.Totals.Add(mapUsage)
	if err != nil {
		p.log.Error("pipeline.document.map_failed", "file", inv.Name, "error", err)
		p.record(ctx, session, inv.Name, constants.DocStatusFailed, err.Error())
		doc.Status = constants.DocStatusFailed
		doc.Err = err.Error()
		return doc
	}
	p.record(ctx, session, inv.Name, constants.DocStatusMapped, "")
	if _, err := p.artifacts.SaveMapping(inv.Name, mapped.Row, mapped.Scores, mapUsage); err != nil {
		p.log.Warn("pipeline.artifact.mapping_failed", "file", inv.Name, "error", err)
	}

	doc.Analysis = p.analyzer.Analyze(mapped.Scores)
	doc.Status = constants.DocStatusAnalyzed
	p.record(ctx, session, inv.Name, constants.DocStatusAnalyzed, "")

	res.Rows = append(res.Rows, mapped.Row)
	res.Scores = append(res.Scores, mapped.Scores)
	res.Analyses = append(res.Analyses, doc.Analysis)
	return doc
}

// record appends a ledger transition; ledger trouble is never fatal.
func (p *Pipeline) record(ctx context.Context, session, document string, status constants.DocStatus, reason string) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(ctx, session, document, status, reason); err != nil {
		p.log.Warn("pipeline.ledger.record_failed", "document", document, "status", string(status), "error", err)
	}
}

func dirOf(invoices []ingest.Invoice) string {
	if len(invoices) == 0 {
		return ""
	}
	return filepath.Dir(invoices[0].Path)
}
