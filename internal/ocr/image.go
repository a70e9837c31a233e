package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image")
	ErrDocumentTooLarge = errors.New("document too large")
)

// ImageInfo is what we learn from the image header without decoding pixels.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// DetectImage checks that data is an image tesseract can read. PDFs are refused.
func DetectImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty document", ErrUnsupportedImage)
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return ImageInfo{}, fmt.Errorf("%w: pdf documents are not supported", ErrUnsupportedImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty %s image", ErrUnsupportedImage, format)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
