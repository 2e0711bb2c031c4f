package extract

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// pdfRasterZoom is the scale factor used when rendering a scanned PDF page
// for the vision path. 2x keeps small print legible without huge payloads.
const pdfRasterZoom = 2.0

// readPDFText extracts the embedded text layer from every page of a PDF.
func readPDFText(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = doc.Close() }()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("extract text from page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// renderFirstPage rasters page 1 of a PDF to a temporary PNG at pdfRasterZoom
// and returns its path. The caller owns the file and must remove it on every
// exit path.
func renderFirstPage(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = doc.Close() }()

	if doc.NumPage() == 0 {
		return "", fmt.Errorf("pdf has no pages: %s", path)
	}

	img, err := doc.ImageDPI(0, 72*pdfRasterZoom)
	if err != nil {
		return "", fmt.Errorf("render pdf page 1: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out, err := os.CreateTemp("", "invoice2csv-"+stem+"-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp raster: %w", err)
	}

	if err := png.Encode(out, img); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode raster png: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("close temp raster: %w", err)
	}
	return out.Name(), nil
}
