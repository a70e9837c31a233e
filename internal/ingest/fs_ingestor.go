package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/kyc-extractor/constants"
)

var ErrUnsupportedExt = errors.New("unsupported or missing extension")

// FSIngestor reads documents from the local filesystem. Within one FSIngestor,
// a document whose content hash was already seen is reported as deduplicated.
type FSIngestor struct {
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> constants.AllowedExtensions
	MaxBytes    int64               // default constants.MaxDocumentBytes
	logger      *slog.Logger

	mu   sync.Mutex
	seen map[string]string // hash -> first path
}

func NewFSIngestor(logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{
		MaxBytes: constants.MaxDocumentBytes,
		logger:   logger,
		seen:     map[string]string{},
	}
}

func (i *FSIngestor) allowed(ext string) bool {
	ext = constants.NormalizeExt(ext)
	if i.AllowedExts == nil {
		return AllowedExt(ext)
	}
	_, ok := i.AllowedExts[ext]
	return ok
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !i.allowed(ext) {
		i.logger.Debug("ingest.skip.ext", "path", abs, "ext", ext)
		return out, fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}

	st, err := os.Stat(abs)
	if err != nil {
		return out, fmt.Errorf("stat: %w", err)
	}
	maxBytes := i.MaxBytes
	if maxBytes <= 0 {
		maxBytes = constants.MaxDocumentBytes
	}
	if st.Size() > maxBytes {
		return out, fmt.Errorf("%s: %d bytes exceeds %d", abs, st.Size(), maxBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	i.mu.Lock()
	if i.seen == nil {
		i.seen = map[string]string{}
	}
	first, dedup := i.seen[hashHex]
	if !dedup {
		i.seen[hashHex] = abs
	}
	i.mu.Unlock()
	if dedup {
		i.logger.Info("ingest.dedup", "path", abs, "same_as", first)
	}

	out = IngestionResult{
		SourcePath:   abs,
		Name:         filepath.Base(abs),
		Data:         data,
		Size:         int64(len(data)),
		Deduplicated: dedup,
		HashHex:      hashHex,
		FileExt:      ext,
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(
	ctx context.Context,
	root string,
	skipHidden bool,
) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if !i.allowed(ext) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Name: filepath.Base(path), Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
