package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/kyc-extractor/constants"
)

// AllowedExt checks if a file extension is one of the accepted image formats.
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
