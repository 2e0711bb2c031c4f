package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledgerline/invoice2csv/constants"
	"github.com/ledgerline/invoice2csv/internal/common"
)

// Invoice is one discovered input document.
type Invoice struct {
	Path string
	Name string
	Type constants.FileType
}

// DetectFileType classifies a path by extension against the allow-list.
// Unsupported extensions return common.ErrUnsupportedFileType; callers skip
// the file and continue the batch.
func DetectFileType(path string) (constants.FileType, error) {
	ft, ok := constants.FileTypeForExt(filepath.Ext(path))
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedFileType, filepath.Ext(path))
	}
	return ft, nil
}

// ListInvoices returns the supported invoice files that are direct children
// of dir, sorted lexicographically by filename. Extension matching is
// case-insensitive. An empty result is an error: a run with nothing to
// process is almost always a mistyped path.
func ListInvoices(dir string) ([]Invoice, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: invoice directory is required", common.ErrInvalidInput)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invoice directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", common.ErrInvalidInput, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read invoice directory: %w", err)
	}

	var invoices []Invoice
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ft, ok := constants.FileTypeForExt(filepath.Ext(e.Name()))
		if !ok {
			continue
		}
		invoices = append(invoices, Invoice{
			Path: filepath.Join(dir, e.Name()),
			Name: e.Name(),
			Type: ft,
		})
	}

	if len(invoices) == 0 {
		return nil, fmt.Errorf("%w: no supported invoice files found in %s", common.ErrInvalidInput, dir)
	}

	sort.Slice(invoices, func(i, j int) bool { return invoices[i].Name < invoices[j].Name })
	return invoices, nil
}
