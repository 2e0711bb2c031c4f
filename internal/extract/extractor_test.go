package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/invoice2csv/constants"
	"github.com/ledgerline/invoice2csv/internal/common"
	"github.com/ledgerline/invoice2csv/internal/ingest"
	"github.com/ledgerline/invoice2csv/internal/llm"
)

// fakeChat records the last call and replies with a fixed body.
type fakeChat struct {
	content     string
	chatCalls   int
	visionCalls int
	lastReq     llm.ChatRequest
	lastImage   string
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.chatCalls++
	f.lastReq = req
	return &llm.ChatResponse{Content: f.content, Usage: llm.Usage{TotalTokens: 42}}, nil
}

func (f *fakeChat) Vision(_ context.Context, _, imagePath, _ string) (*llm.ChatResponse, error) {
	f.visionCalls++
	f.lastImage = imagePath
	return &llm.ChatResponse{Content: f.content, Usage: llm.Usage{TotalTokens: 42}}, nil
}

const sampleInvoiceJSON = `{"invoice_number": "INV-001", "vendor_name": "Acme", "total_amount": "99.00"}`

func TestExtractTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("Invoice INV-001 from Acme, total 99.00"), 0o644))

	fake := &fakeChat{content: sampleInvoiceJSON}
	e := NewExtractor(fake, Config{TextModel: "gpt-4o-mini"}, nil)

	data, usage, err := e.Extract(context.Background(), ingest.Invoice{
		Path: path, Name: "invoice.txt", Type: constants.FileTypeText,
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-001", *data.InvoiceNumber)
	assert.Equal(t, 42, usage.TotalTokens)
	assert.Equal(t, 1, fake.chatCalls)
	assert.Zero(t, fake.visionCalls)
	assert.True(t, fake.lastReq.JSONMode)
	assert.Zero(t, fake.lastReq.Temperature)
	assert.Equal(t, "gpt-4o-mini", fake.lastReq.Model)
}

func TestExtractEmptyTextFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n "), 0o644))

	e := NewExtractor(&fakeChat{content: sampleInvoiceJSON}, Config{}, nil)
	_, _, err := e.Extract(context.Background(), ingest.Invoice{
		Path: path, Name: "empty.txt", Type: constants.FileTypeText,
	})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestExtractImageUsesVision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpegdata"), 0o644))

	fake := &fakeChat{content: sampleInvoiceJSON}
	e := NewExtractor(fake, Config{VisionModel: "gpt-4o"}, nil)

	data, _, err := e.Extract(context.Background(), ingest.Invoice{
		Path: path, Name: "scan.jpg", Type: constants.FileTypeImage,
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme", *data.VendorName)
	assert.Equal(t, 1, fake.visionCalls)
	assert.Equal(t, path, fake.lastImage)
	assert.Zero(t, fake.chatCalls)
}

func TestExtractBadJSONResponseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("some invoice text long enough"), 0o644))

	e := NewExtractor(&fakeChat{content: "sorry, I cannot do that"}, Config{}, nil)
	_, usage, err := e.Extract(context.Background(), ingest.Invoice{
		Path: path, Name: "invoice.txt", Type: constants.FileTypeText,
	})
	assert.ErrorIs(t, err, common.ErrResponseFormat)
	// token usage from the failed call is still reported for accounting
	assert.Equal(t, 42, usage.TotalTokens)
}

func TestExtractUnknownTypeFails(t *testing.T) {
	e := NewExtractor(&fakeChat{}, Config{}, nil)
	_, _, err := e.Extract(context.Background(), ingest.Invoice{Name: "x", Type: constants.FileType("WEIRD")})
	assert.ErrorIs(t, err, common.ErrUnsupportedFileType)
}

func TestBuildTextPromptEmbedsDocument(t *testing.T) {
	p := BuildTextPrompt("RAW INVOICE BODY")
	assert.Contains(t, p, "RAW INVOICE BODY")
	assert.Contains(t, p, "invoice_number")
}
