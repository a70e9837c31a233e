package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/export"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
	"github.com/joseph-ayodele/kyc-extractor/internal/metrics"
	"github.com/joseph-ayodele/kyc-extractor/internal/narrative"
	"github.com/joseph-ayodele/kyc-extractor/internal/ocr"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

// DriverNone disables the analysis journal.
const DriverNone = "none"

// App bundles the collaborators every binary needs.
type App struct {
	Config   *common.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    *repository.Store             // nil when the journal is disabled
	Journal  repository.AnalysisRepository // nil when the journal is disabled
	Export   *export.Service
	Analyzer *pipeline.Analyzer
}

// Option adjusts the bootstrap.
type Option func(*options)

type options struct {
	recognizer pipeline.Recognizer
	narrator   narrative.Requester
	noJournal  bool
}

// WithRecognizer replaces the tesseract-backed recognizer.
func WithRecognizer(r pipeline.Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// WithNarrator replaces the narrator built from cfg.Narrative.
func WithNarrator(n narrative.Requester) Option {
	return func(o *options) { o.narrator = n }
}

// WithoutJournal skips the database even when one is configured.
func WithoutJournal() Option {
	return func(o *options) { o.noJournal = true }
}

// New wires config into a ready analyzer. Callers must Close the result.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = common.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("app.config.invalid", "error", err)
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if !o.noJournal && !strings.EqualFold(cfg.Journal.Driver, DriverNone) {
		store, err := InitJournal(ctx, cfg.Journal, logger)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.Journal = repository.NewAnalysisRepository(store, logger)
	}
	a.Export = export.NewService(a.Journal, logger)

	recognizer := o.recognizer
	if recognizer == nil {
		recognizer = ocr.NewExtractor(ocr.Config{
			Tesseract:           cfg.OCR.Tesseract,
			Lang:                cfg.OCR.Lang,
			TessdataDir:         cfg.OCR.TessdataDir,
			EnableTSVConfidence: cfg.OCR.TSVConfidence,
			PSM:                 cfg.OCR.PSM,
			OEM:                 cfg.OCR.OEM,
			TempDir:             cfg.OCR.TempDir,
		}, logger)
	}

	pipeOpts := []pipeline.Option{pipeline.WithMetrics(a.Metrics)}
	if a.Journal != nil {
		pipeOpts = append(pipeOpts, pipeline.WithJournal(a.Journal))
	}
	narrator := o.narrator
	if narrator == nil && cfg.Narrative.Enabled {
		temperature := cfg.Narrative.Temperature
		n, err := narrative.New(cfg.Narrative.Provider, narrative.Config{
			BaseURL:     cfg.Narrative.BaseURL,
			Model:       cfg.Narrative.Model,
			APIKey:      cfg.Narrative.APIKey,
			Temperature: &temperature,
			MaxTokens:   cfg.Narrative.MaxTokens,
			Timeout:     cfg.Narrative.Timeout,
		}, logger)
		if err != nil {
			a.Close()
			return nil, common.NewAppError(common.CodeConfig, "narrative provider", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		}
		narrator = n
	}
	if narrator != nil {
		pipeOpts = append(pipeOpts, pipeline.WithNarrator(narrator))
	}

	extractor := kyc.NewExtractor(kyc.Options{FoldApostrophes: cfg.Extraction.FoldApostrophes})
	a.Analyzer = pipeline.NewAnalyzer(recognizer, extractor, logger, pipeOpts...)

	logger.Info("app.ready",
		"journal", a.Journal != nil,
		"narrative", narrator != nil,
		"ocr_lang", cfg.OCR.Lang,
	)
	return a, nil
}

// InitJournal opens the configured database, checks it and applies migrations.
func InitJournal(ctx context.Context, cfg common.JournalConfig, logger *slog.Logger) (*repository.Store, error) {
	store, err := repository.Open(ctx, repository.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		DialTimeout:     cfg.DialTimeout,
	}, logger)
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "open journal", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	if err := store.HealthCheck(ctx, cfg.DialTimeout); err != nil {
		store.Close()
		return nil, common.NewAppError(common.CodeDatabase, "journal health check", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, common.NewAppError(common.CodeDatabase, "migrate journal", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	return store, nil
}

// Health reports journal reachability; nil when the journal is disabled.
func (a *App) Health() func(ctx context.Context) error {
	if a.Store == nil {
		return nil
	}
	timeout := a.Config.Journal.DialTimeout
	return func(ctx context.Context) error {
		return a.Store.HealthCheck(ctx, timeout)
	}
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
