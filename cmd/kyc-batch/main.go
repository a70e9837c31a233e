package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/internal/app"
	"github.com/joseph-ayodele/kyc-extractor/internal/async"
	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/ingest"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
	"github.com/joseph-ayodele/kyc-extractor/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// collector gathers worker outcomes for the final report.
type collector struct {
	mu       sync.Mutex
	rows     []*repository.Analysis
	failures int
}

func (c *collector) add(o async.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Err != nil || o.Result == nil {
		c.failures++
		return
	}
	c.rows = append(c.rows, o.Result.Analysis())
}

func (c *collector) snapshot() ([]*repository.Analysis, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := append([]*repository.Analysis(nil), c.rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].DocumentName < rows[j].DocumentName })
	return rows, c.failures
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exiting.
func run() int {
	// Parse CLI flags
	var (
		configPath = flag.String("config", "", "YAML config file (default $KYC_CONFIG)")
		dir        = flag.String("dir", "", "directory of KBIS / registry extract images (required)")
		out        = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		narrative  = flag.Bool("narrative", false, "request the AI narrative for each document")
		watch      = flag.Bool("watch", false, "keep watching -dir for new documents until interrupted")
		upload     = flag.Bool("upload", false, "upload the report to the configured S3/MinIO bucket")
		noJournal  = flag.Bool("no-journal", false, "do not record analyses in the journal")
		workers    = flag.Int("workers", 0, "worker count (default from config)")
	)
	flag.Parse()

	// Validate required flags
	if *dir == "" {
		printError("Error: --dir is required\n")
		return 2
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "kyc-report.xlsx")
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		return 2
	}
	if *narrative {
		cfg.Narrative.Enabled = true
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	logger := common.NewLogger(os.Stdout, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if *noJournal {
		opts = append(opts, app.WithoutJournal())
	}
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	var store *storage.Store
	if *upload {
		store, err = storage.New(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize storage", "error", err)
			return 1
		}
	}

	results := &collector{}
	queue := async.NewAnalyzerQueue(a.Analyzer, logger,
		async.WithWorkers(cfg.Batch.Workers),
		async.WithQueueSize(cfg.Batch.QueueSize),
		async.WithProcessTimeout(cfg.Batch.JobTimeout),
		async.WithOnDone(results.add),
	)

	ingestor := ingest.NewFSIngestor(logger)
	submit := func(r ingest.IngestionResult) {
		if r.Err != "" || r.Deduplicated {
			return
		}
		err := queue.Enqueue(ctx, async.Job{Document: pipeline.Document{
			Name:      r.Name,
			Data:      r.Data,
			Narrative: *narrative,
		}})
		if err != nil {
			logger.Error("failed to enqueue", "path", r.SourcePath, "error", err)
		}
	}

	var stats ingest.DirStats
	if *watch {
		s, err := watchDir(ctx, *dir, ingestor, submit, logger)
		if err != nil {
			logger.Error("failed to watch directory", "error", err)
			queue.Shutdown(context.Background())
			return 1
		}
		stats = s
	} else {
		logger.Info("starting ingestion", "dir", *dir)
		ingested, s, err := ingestor.IngestDirectory(ctx, *dir, true)
		if err != nil {
			logger.Error("failed to ingest directory", "error", err)
			queue.Shutdown(context.Background())
			return 1
		}
		stats = s
		for _, r := range ingested {
			submit(r)
		}
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Batch.JobTimeout+30*time.Second)
	queue.Shutdown(shutdownCtx)
	cancel()

	rows, failures := results.snapshot()
	xlsxBytes, err := a.Export.AnalysesXLSX(rows)
	if err != nil {
		logger.Error("failed to build report", "error", err)
		return 1
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		return 1
	}

	var url string
	if store != nil {
		key := fmt.Sprintf("reports/%s/%s", time.Now().UTC().Format("2006-01-02"), filepath.Base(*out))
		url, err = store.Upload(context.Background(), key, xlsxBytes, xlsxContentType)
		if err != nil {
			logger.Error("failed to upload report", "error", err)
		}
	}

	logger.Info("batch processing complete",
		"analyzed", len(rows),
		"failures", failures,
		"output_file", *out,
		"report_url", url)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents matched: %d\n", stats.Matched)
	fmt.Printf("- Documents analyzed: %d\n", len(rows))
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
	if url != "" {
		fmt.Printf("- Uploaded: %s\n", url)
	}
	return 0
}

// watchDir feeds existing and newly written documents to submit until ctx is done.
func watchDir(ctx context.Context, dir string, ingestor *ingest.FSIngestor, submit func(ingest.IngestionResult), logger *slog.Logger) (ingest.DirStats, error) {
	var stats ingest.DirStats
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		SkipHidden:  true,
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		return stats, err
	}
	logger.Info("watching", "dir", dir)

	for paths != nil || errs != nil {
		select {
		case p, ok := <-paths:
			if !ok {
				paths = nil
				continue
			}
			stats.Scanned++
			stats.Matched++
			r, err := ingestor.IngestPath(ctx, p)
			if err != nil {
				stats.Failed++
				logger.Warn("ingest failed", "path", p, "error", err)
				continue
			}
			if r.Deduplicated {
				stats.Deduplicated++
				continue
			}
			stats.Succeeded++
			submit(r)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher error", "error", err)
		}
	}
	return stats, nil
}
