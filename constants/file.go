package constants

import "strings"

// Document formats recognised by the OCR stage.
const (
	IMAGE   = "IMAGE"
	PDF     = "PDF"
	UNKNOWN = "UNKNOWN"
)

// AllowedExtensions holds the image extensions accepted for KYC document ingestion.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
}

// MaxDocumentBytes caps a single uploaded document.
const MaxDocumentBytes = 20 << 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat classifies a normalized extension.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if _, ok := AllowedExtensions[ext]; ok {
		return IMAGE
	}
	if ext == "pdf" {
		return PDF
	}
	return UNKNOWN
}
