package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgerline/invoice2csv/constants"
	"github.com/ledgerline/invoice2csv/internal/artifact"
	"github.com/ledgerline/invoice2csv/internal/common"
	"github.com/ledgerline/invoice2csv/internal/confidence"
	"github.com/ledgerline/invoice2csv/internal/extract"
	"github.com/ledgerline/invoice2csv/internal/ingest"
	"github.com/ledgerline/invoice2csv/internal/llm"
	"github.com/ledgerline/invoice2csv/internal/mapper"
	"github.com/ledgerline/invoice2csv/internal/output"
	"github.com/ledgerline/invoice2csv/internal/pipeline"
	"github.com/ledgerline/invoice2csv/internal/runlog"
	"github.com/ledgerline/invoice2csv/internal/schema"
)

// errCancelled marks a user-declined confirmation; it exits 0, not 1.
var errCancelled = errors.New("cancelled by user")

type cliOptions struct {
	templatePath   string
	invoiceDir     string
	outPath        string
	format         string
	autoConfirm    bool
	withConfidence bool
}

func main() {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "invoice2csv",
		Short: "Normalize invoice documents onto a CSV template with an LLM",
		Long: "invoice2csv reads a CSV template, infers the semantic meaning of its columns,\n" +
			"extracts structured fields from invoice documents (images, PDFs, text) via an\n" +
			"OpenAI-compatible API, maps them onto the template columns with per-column\n" +
			"confidence scores, and writes one output row per invoice.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	root.Flags().StringVarP(&opts.templatePath, "template", "t", "", "path to CSV template file")
	root.Flags().StringVarP(&opts.invoiceDir, "invoices", "i", "", "directory containing invoice files")
	root.Flags().StringVarP(&opts.outPath, "out", "o", "", "output file path (default: <output dir>/final_output.csv)")
	root.Flags().StringVar(&opts.format, "format", "csv", "output format: csv or xlsx")
	root.Flags().BoolVarP(&opts.autoConfirm, "yes", "y", false, "process without confirmation prompt")
	root.Flags().BoolVar(&opts.withConfidence, "with-confidence", true, "append a <header>_confidence column per header")

	if err := root.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errCancelled) {
			fmt.Println("Processing cancelled.")
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *cliOptions) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.format != "csv" && opts.format != "xlsx" {
		return fmt.Errorf("%w: unknown output format %q", common.ErrInvalidInput, opts.format)
	}

	stdin := bufio.NewReader(os.Stdin)

	templatePath, err := resolveTemplate(stdin, opts.templatePath)
	if err != nil {
		return err
	}
	fmt.Printf("Template: %s\n", templatePath)

	invoiceDir, invoices, err := resolveInvoices(stdin, opts.invoiceDir)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d invoice file(s) in %s\n", len(invoices), invoiceDir)
	for i, inv := range invoices {
		fmt.Printf("   %d. %s\n", i+1, inv.Name)
	}

	if !opts.autoConfirm {
		if !confirm(stdin, fmt.Sprintf("Process %d invoice(s)? (yes/no): ", len(invoices))) {
			return errCancelled
		}
	}

	client := llm.NewClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	}, logger)

	saver, err := artifact.NewSaver(cfg.Output.ArtifactDir)
	if err != nil {
		return err
	}

	ledger, err := runlog.Open(cfg.Output.LedgerPath)
	if err != nil {
		// The ledger is audit-only; a broken one must not block processing.
		logger.Warn("run ledger unavailable", "path", cfg.Output.LedgerPath, "error", err)
		ledger = nil
	} else {
		defer func() { _ = ledger.Close() }()
	}

	analyzer := confidence.NewAnalyzer(confidence.Thresholds{
		Low:    cfg.Thresholds.LowConfidence,
		Medium: cfg.Thresholds.MediumConfidence,
	})

	p := pipeline.New(
		schema.NewInferrer(client, cfg.LLM.DefaultModel, logger),
		extract.NewExtractor(client, extract.Config{
			VisionModel:  cfg.LLM.VisionModel,
			TextModel:    cfg.LLM.TextModel,
			PDFTextChars: cfg.Thresholds.PDFTextChars,
		}, logger),
		mapper.NewMapper(client, cfg.LLM.DefaultModel, logger),
		analyzer,
		buildWriter(cfg, opts, logger),
		saver,
		ledger,
		logger,
	)

	fmt.Println("Processing...")
	res, err := p.Run(ctx, templatePath, invoices)
	if err != nil {
		return err
	}

	printReport(res, analyzer, saver)
	return nil
}

// buildWriter selects the output format and honors --with-confidence by
// stripping scores before they reach the serializer.
func buildWriter(cfg *common.Config, opts *cliOptions, logger *slog.Logger) pipeline.Writer {
	outPath := opts.outPath
	if outPath == "" {
		name := cfg.Output.CSVName
		if opts.format == "xlsx" {
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".xlsx"
		}
		outPath = filepath.Join(cfg.Output.Dir, name)
	}

	wcfg := output.WriterConfig{
		Path:     outPath,
		Attempts: cfg.Output.WriteAttempts,
	}
	var w pipeline.Writer
	if opts.format == "xlsx" {
		w = output.NewXLSXWriter(wcfg, logger)
	} else {
		w = output.NewCSVWriter(wcfg, logger)
	}
	if !opts.withConfidence {
		w = plainWriter{w}
	}
	return w
}

// plainWriter drops confidence columns from the output.
type plainWriter struct {
	inner pipeline.Writer
}

func (p plainWriter) Write(headers []string, rows []mapper.Row, _ []mapper.Scores) (string, error) {
	return p.inner.Write(headers, rows, nil)
}

func resolveTemplate(stdin *bufio.Reader, flagValue string) (string, error) {
	if flagValue != "" {
		if _, err := schema.ReadTemplateHeaders(flagValue); err != nil {
			return "", err
		}
		return flagValue, nil
	}
	return promptUntilValid(stdin, "Enter path to CSV template file: ", func(path string) error {
		_, err := schema.ReadTemplateHeaders(path)
		return err
	})
}

func resolveInvoices(stdin *bufio.Reader, flagValue string) (string, []ingest.Invoice, error) {
	if flagValue != "" {
		invoices, err := ingest.ListInvoices(flagValue)
		return flagValue, invoices, err
	}
	var invoices []ingest.Invoice
	dir, err := promptUntilValid(stdin, "Enter directory path containing invoice files: ", func(path string) error {
		found, err := ingest.ListInvoices(path)
		if err != nil {
			return err
		}
		invoices = found
		return nil
	})
	return dir, invoices, err
}

// promptUntilValid re-prompts until validate accepts the input or stdin ends.
func promptUntilValid(stdin *bufio.Reader, prompt string, validate func(string) error) (string, error) {
	for {
		fmt.Print(prompt)
		line, err := stdin.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		value := strings.TrimSpace(line)
		if value == "" {
			fmt.Println("Input cannot be empty. Please try again.")
			continue
		}
		if err := validate(value); err != nil {
			fmt.Printf("Error: %v\nPlease try again.\n", err)
			continue
		}
		return value, nil
	}
}

func confirm(stdin *bufio.Reader, prompt string) bool {
	fmt.Print(prompt)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}

func printReport(res *pipeline.Result, analyzer *confidence.Analyzer, saver *artifact.Saver) {
	fmt.Println()
	for _, doc := range res.Documents {
		if doc.Status == constants.DocStatusFailed {
			fmt.Printf("FAILED  %s: %s\n", doc.Name, doc.Err)
			continue
		}
		fmt.Printf("OK      %s (avg confidence %.3f)\n", doc.Name, doc.Analysis.Average)
		if warnings := analyzer.FormatWarnings(doc.Analysis, doc.Name); warnings != "" {
			fmt.Println(warnings)
		}
	}

	fmt.Println()
	fmt.Printf("Invoices processed: %d/%d\n", res.Summary.Documents, len(res.Documents))
	if res.Summary.Documents > 0 {
		fmt.Printf("Overall average confidence: %.3f\n", res.Summary.OverallAverage)
		fmt.Printf("Low-confidence fields: %d, medium-confidence fields: %d\n",
			res.Summary.TotalLow, res.Summary.TotalMedium)
	}

	fmt.Printf("API calls: %d, tokens: %d (prompt %d, completion %d)\n",
		res.Totals.Calls, res.Totals.TotalTokens, res.Totals.PromptTokens, res.Totals.CompletionTokens)
	fmt.Printf("Estimated cost (gpt-4o-mini): $%.6f\n", res.Totals.EstimateCostUSD(0.15, 0.60))

	if res.Summary.TotalLow > 0 || res.Summary.TotalMedium > 0 {
		fmt.Println("\nWARNING: some fields have low or medium confidence scores.")
		fmt.Println("Please review the output and verify the flagged fields.")
	}

	if res.OutputPath != "" {
		fmt.Printf("\nOutput written: %s\n", res.OutputPath)
	} else {
		fmt.Println("\nNo rows written: every document failed.")
	}
	fmt.Printf("Audit artifacts: %s (session %s)\n", saver.Dir(), saver.Session())
}
