package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/kyc-extractor/constants"
	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
	"github.com/joseph-ayodele/kyc-extractor/internal/metrics"
	"github.com/joseph-ayodele/kyc-extractor/internal/narrative"
	"github.com/joseph-ayodele/kyc-extractor/internal/ocr"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
	"github.com/joseph-ayodele/kyc-extractor/internal/risk"
)

const tracerName = "github.com/joseph-ayodele/kyc-extractor/internal/pipeline"

// Recognizer turns a document image into raw text.
//
//go:generate mockgen -source=analyzer.go -destination=mocks/mock_ocr.go -package=mocks
type Recognizer interface {
	Recognize(ctx context.Context, name string, data []byte) (ocr.ExtractionResult, error)
}

// Document is one analysis request. Text, when set and Data is empty, skips OCR.
type Document struct {
	Name       string
	Data       []byte
	Text       string
	Narrative  bool
	Credential string
}

// NarrativeOutcome reports what happened to the optional narrative request.
type NarrativeOutcome struct {
	Status constants.NarrativeStatus `json:"status"`
	Text   string                    `json:"text,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

type Result struct {
	ID             string           `json:"id"`
	DocumentName   string           `json:"document_name"`
	ContentHash    string           `json:"content_hash"`
	RawText        string           `json:"raw_text"`
	NormalizedText string           `json:"normalized_text"`
	OCRConfidence  float32          `json:"ocr_confidence"`
	Record         kyc.Record       `json:"record"`
	Assessment     risk.Assessment  `json:"assessment"`
	Band           risk.Band        `json:"band"`
	Narrative      NarrativeOutcome `json:"narrative"`
	AnalyzedAt     time.Time        `json:"analyzed_at"`
}

// Analysis converts the result into its journal row.
func (r *Result) Analysis() *repository.Analysis {
	return &repository.Analysis{
		ID:              r.ID,
		DocumentName:    r.DocumentName,
		ContentHash:     r.ContentHash,
		Record:          r.Record,
		Score:           r.Assessment.Score,
		Band:            r.Band.String(),
		Factors:         r.Assessment.Factors,
		NarrativeStatus: string(r.Narrative.Status),
		Narrative:       r.Narrative.Text,
		NarrativeError:  r.Narrative.Error,
		OCRConfidence:   r.OCRConfidence,
		AnalyzedAt:      r.AnalyzedAt,
	}
}

// Analyzer coordinates OCR, field extraction, risk scoring, the optional narrative
// and the journal. It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	ocr       Recognizer
	extractor *kyc.Extractor
	narrator  narrative.Requester
	journal   repository.AnalysisRepository
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Analyzer)

func WithNarrator(n narrative.Requester) Option {
	return func(a *Analyzer) { a.narrator = n }
}

func WithJournal(j repository.AnalysisRepository) Option {
	return func(a *Analyzer) { a.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) { a.tracer = t }
}

// WithClock replaces time.Now, used for the entity-age heuristic.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(recognizer Recognizer, extractor *kyc.Extractor, logger *slog.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = kyc.NewExtractor(kyc.Options{})
	}
	a := &Analyzer{
		ocr:       recognizer,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracerName)
	}
	return a
}

// AnalyzeText runs the analysis on text that was already recognized.
func (a *Analyzer) AnalyzeText(ctx context.Context, name, text string) (*Result, error) {
	return a.Analyze(ctx, Document{Name: name, Text: text})
}

// Analyze runs the whole chain for one document. Only invalid input and OCR or
// image failures are returned as errors; a failed narrative or journal write leaves
// the result intact.
func (a *Analyzer) Analyze(ctx context.Context, doc Document) (*Result, error) {
	start := time.Now()
	ctx, reqID := common.EnsureRequestID(ctx)
	logger := common.LoggerFromContext(ctx, a.logger).With("req_id", reqID, "document", doc.Name)

	ctx, span := a.tracer.Start(ctx, "pipeline.analyze",
		trace.WithAttributes(attribute.String("document.name", doc.Name)))
	defer span.End()

	v := common.NewValidator().Field("document_name", doc.Name, common.Required, common.MaxLength(512))
	if len(doc.Data) == 0 {
		v.Field("document", doc.Text, common.Required)
	}
	if err := v.Error(); err != nil {
		endSpan(span, err)
		return nil, common.NewAppError(common.CodeValidation, "invalid document", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	res := &Result{
		ID:           uuid.NewString(),
		DocumentName: doc.Name,
		AnalyzedAt:   a.now().UTC(),
	}

	if len(doc.Data) > 0 {
		raw, err := a.recognize(ctx, logger, doc)
		if err != nil {
			endSpan(span, err)
			return nil, err
		}
		res.RawText = raw.Text
		res.OCRConfidence = raw.Confidence
		res.ContentHash = contentHash(doc.Data)
	} else {
		res.RawText = doc.Text
		res.ContentHash = contentHash([]byte(doc.Text))
	}

	a.extract(ctx, res)

	res.Assessment = risk.Score(res.Record, res.AnalyzedAt)
	res.Band = res.Assessment.Band()
	span.SetAttributes(
		attribute.String("kyc.type_personne", string(res.Record.PersonType())),
		attribute.Int("risk.score", res.Assessment.Score),
	)
	a.metrics.ObserveAnalysis(string(res.Record.PersonType()), res.Band.String(), len(res.Record.Found()))

	res.Narrative = a.narrate(ctx, logger, doc, res.Record)
	a.metrics.ObserveNarrative(string(res.Narrative.Status))

	if a.journal != nil {
		if err := a.journal.Save(ctx, res.Analysis()); err != nil {
			a.metrics.ObserveFailure("journal")
			logger.Error("pipeline.journal.failed", "analysis_id", res.ID, "error", err)
		}
	}

	a.metrics.ObserveStage("total", time.Since(start))
	logger.Info("pipeline.analyze.ok",
		"analysis_id", res.ID,
		"type_personne", res.Record.PersonType(),
		"fields", len(res.Record.Found()),
		"score", res.Assessment.Score,
		"band", res.Band,
		"narrative", res.Narrative.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (a *Analyzer) recognize(ctx context.Context, logger *slog.Logger, doc Document) (ocr.ExtractionResult, error) {
	if a.ocr == nil {
		return ocr.ExtractionResult{}, common.NewAppError(common.CodeOCR, "no ocr engine configured", common.ErrUnavailable)
	}
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "pipeline.ocr")
	defer span.End()

	raw, err := a.ocr.Recognize(ctx, doc.Name, doc.Data)
	a.metrics.ObserveStage("ocr", time.Since(start))
	if err != nil {
		a.metrics.ObserveFailure("ocr")
		endSpan(span, err)
		logger.Error("pipeline.ocr.failed", "error", err)
		if errors.Is(err, ocr.ErrUnsupportedImage) || errors.Is(err, ocr.ErrDocumentTooLarge) {
			return raw, common.NewAppError(common.CodeImage, "cannot load document image", err)
		}
		return raw, common.NewAppError(common.CodeOCR, "ocr failed", err)
	}
	a.metrics.ObserveOCRConfidence(raw.Confidence)
	logger.Debug("pipeline.ocr.ok",
		"format", raw.Format,
		"confidence", raw.Confidence,
		"chars", len(raw.Text),
		"warnings", len(raw.Warnings),
	)
	return raw, nil
}

func (a *Analyzer) extract(ctx context.Context, res *Result) {
	start := time.Now()
	_, span := a.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	res.NormalizedText = kyc.Normalize(res.RawText)
	res.Record = a.extractor.Extract(res.NormalizedText)
	a.metrics.ObserveStage("extract", time.Since(start))
}

func (a *Analyzer) narrate(ctx context.Context, logger *slog.Logger, doc Document, rec kyc.Record) (out NarrativeOutcome) {
	if !doc.Narrative {
		return NarrativeOutcome{Status: constants.NarrativeSkipped}
	}
	if a.narrator == nil {
		return NarrativeOutcome{Status: constants.NarrativeFailed, Error: "narrative requester not configured"}
	}

	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "pipeline.narrative")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline.narrative.panic", "panic", r)
			out = NarrativeOutcome{Status: constants.NarrativeFailed, Error: fmt.Sprintf("narrative panic: %v", r)}
		}
		a.metrics.ObserveStage("narrative", time.Since(start))
	}()

	text, err := a.narrator.Narrate(ctx, rec, doc.Credential)
	if err != nil {
		a.metrics.ObserveFailure("narrative")
		endSpan(span, err)
		logger.Warn("pipeline.narrative.failed", "error", err)
		return NarrativeOutcome{Status: constants.NarrativeFailed, Error: err.Error()}
	}
	return NarrativeOutcome{Status: constants.NarrativeOK, Text: text}
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
