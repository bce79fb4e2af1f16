package constants

import (
	"net/http"
	"path/filepath"
	"strings"
)

// DocumentFormat is a coarse classification of submitted bytes used by the
// extraction backends to decide whether they apply.
type DocumentFormat string

const (
	FormatPDF     DocumentFormat = "PDF"
	FormatImage   DocumentFormat = "IMAGE"
	FormatHTML    DocumentFormat = "HTML"
	FormatText    DocumentFormat = "TXT"
	FormatUnknown DocumentFormat = "UNKNOWN"
)

// AllowedExtensions holds the default extensions picked up by directory and inbox ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
	"txt":  {},
	"htm":  {},
	"html": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DetectFormat classifies content by magic bytes first and falls back to the filename extension.
func DetectFormat(filename string, content []byte) DocumentFormat {
	ct := http.DetectContentType(content)
	switch {
	case ct == "application/pdf":
		return FormatPDF
	case strings.HasPrefix(ct, "image/"):
		return FormatImage
	case strings.HasPrefix(ct, "text/html"):
		return FormatHTML
	}
	switch NormalizeExt(filepath.Ext(filename)) {
	case "pdf":
		return FormatPDF
	case "png", "jpg", "jpeg", "tif", "tiff", "bmp", "webp":
		return FormatImage
	case "htm", "html":
		return FormatHTML
	case "txt", "text", "md":
		return FormatText
	}
	if strings.HasPrefix(ct, "text/plain") {
		return FormatText
	}
	return FormatUnknown
}
