package constants

import "strings"

// MaxUploadBytes is the default byte ceiling for a single uploaded PDF.
const MaxUploadBytes = 10 << 20 // 10 MiB

// PDFContentType is the only content type accepted on upload.
const PDFContentType = "application/pdf"

// AllowedExtensions holds the allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without leading dot) is ingestible.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
