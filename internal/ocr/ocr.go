package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/constants"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Lang      string // default "fra"

	TessdataDir         string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	TempDir  string // where images are staged for tesseract; default os.TempDir()
	MaxBytes int64  // default constants.MaxDocumentBytes
}

type ExtractionResult struct {
	Text       string
	Format     string // png, jpeg, gif, bmp, tiff, webp
	Width      int
	Height     int
	Method     string // "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// Extractor turns a document image into raw text with the tesseract CLI.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return NewExtractorWithRunner(cfg, execRunner{logger: logger}, logger)
}

// NewExtractorWithRunner is NewExtractor with a custom command runner.
func NewExtractorWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "fra"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = constants.MaxDocumentBytes
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Recognize validates the image in data, stages it on disk and runs tesseract over it.
// name is only used for logging. Unreadable or unsupported documents fail with
// ErrUnsupportedImage.
func (e *Extractor) Recognize(ctx context.Context, name string, data []byte) (ExtractionResult, error) {
	start := time.Now()
	if int64(len(data)) > e.cfg.MaxBytes {
		return ExtractionResult{}, fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, len(data), e.cfg.MaxBytes)
	}
	info, err := DetectImage(data)
	if err != nil {
		e.logger.Warn("ocr.image.rejected", "document", name, "error", err)
		return ExtractionResult{}, err
	}
	e.logger.Debug("ocr.start", "document", name, "format", info.Format, "width", info.Width, "height", info.Height)

	path, cleanup, err := e.stage(data, info.Format)
	if err != nil {
		return ExtractionResult{}, err
	}
	defer cleanup()

	res, err := e.extractImage(ctx, path)
	res.Format = info.Format
	res.Width = info.Width
	res.Height = info.Height
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("ocr.failed", "document", name, "error", err, "duration_ms", res.Duration.Milliseconds())
		return res, err
	}
	e.logger.Info("ocr.ok",
		"document", name,
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) stage(data []byte, format string) (string, func(), error) {
	f, err := os.CreateTemp(e.cfg.TempDir, "kyc-*."+format)
	if err != nil {
		return "", nil, fmt.Errorf("stage image: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage image: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("stage image: %w", err)
	}
	return f.Name(), cleanup, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	txt, warn, err := e.tesseractOCR(ctx, path)
	if err != nil {
		return ExtractionResult{Method: "image-ocr", Language: e.cfg.Lang, Warnings: warn}, err
	}

	var ocrConf float32
	if e.cfg.EnableTSVConfidence {
		if c, w, err2 := e.tesseractTSVConfidence(ctx, path); err2 == nil {
			ocrConf = c
			warn = append(warn, w...)
		} else {
			warn = append(warn, err2.Error())
		}
	}

	return ExtractionResult{
		Text:       txt,
		Method:     "image-ocr",
		Language:   e.cfg.Lang,
		Warnings:   warn,
		Confidence: blendConfidence(ocrConf, heuristicConfidence(txt)),
	}, nil
}

func (e *Extractor) baseArgs(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

// tesseract <file> stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D]
func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.baseArgs(path)...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	args := append(e.baseArgs(path), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract TSV: %w", err)
	}
	return meanTSVConfidence(string(out)), nil, nil
}
