package constants

import "strings"

// FileType classifies an invoice document by how it is sent to the LLM.
type FileType string

const (
	FileTypeImage FileType = "IMAGE"
	FileTypePDF   FileType = "PDF"
	FileTypeText  FileType = "TEXT"
)

// ImageExtensions holds the allowed image file extensions for invoice ingestion.
var ImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// PDFExtensions holds the allowed PDF file extensions.
var PDFExtensions = map[string]struct{}{
	"pdf": {},
}

// TextExtensions holds the allowed plain-text file extensions.
var TextExtensions = map[string]struct{}{
	"txt": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FileTypeForExt returns the FileType for a file extension, or false when the
// extension is not on the allow-list. Matching is case-insensitive.
func FileTypeForExt(ext string) (FileType, bool) {
	ext = NormalizeExt(ext)
	if _, ok := ImageExtensions[ext]; ok {
		return FileTypeImage, true
	}
	if _, ok := PDFExtensions[ext]; ok {
		return FileTypePDF, true
	}
	if _, ok := TextExtensions[ext]; ok {
		return FileTypeText, true
	}
	return "", false
}
