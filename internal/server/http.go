package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/kyc-extractor/constants"
	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/export"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

const (
	// NarrativeKeyHeader carries a per-request chat-completion API key.
	NarrativeKeyHeader = "X-Narrative-Key"
	requestIDHeader    = "X-Request-ID"
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type HTTPDeps struct {
	Analyzer Analyzer
	Journal  repository.AnalysisRepository // nil when the journal is disabled
	Export   *export.Service
	Gatherer prometheus.Gatherer // nil -> prometheus.DefaultGatherer
	Health   func(ctx context.Context) error

	CORSOrigins    []string
	MaxUploadBytes int64 // default constants.MaxDocumentBytes
	Logger         *slog.Logger
}

type router struct {
	deps   HTTPDeps
	logger *slog.Logger
}

// NewHTTPHandler mounts the REST API.
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = constants.MaxDocumentBytes
	}
	r := &router{deps: deps, logger: deps.Logger}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(r.requestContext)
	if len(deps.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", NarrativeKeyHeader, requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	mux.Get("/health", r.handleHealth)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	mux.Route("/v1/analyses", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleAnalyzeUpload))
		rt.Post("/text", r.wrap(r.handleAnalyzeText))
		rt.Get("/", r.wrap(r.handleList))
		rt.Get("/export.xlsx", r.wrap(r.handleExport))
		rt.Get("/{id}", r.wrap(r.handleGet))
	})
	return mux
}

func (r *router) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ctx := req.Context()
		if id := strings.TrimSpace(req.Header.Get(requestIDHeader)); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, reqID := common.EnsureRequestID(ctx)
		ctx = common.WithLogger(ctx, r.logger.With("req_id", reqID))
		w.Header().Set(requestIDHeader, reqID)

		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req.WithContext(ctx))
		r.logger.Info("http.request",
			"req_id", reqID,
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			code := common.HTTPStatus(err)
			if code >= http.StatusInternalServerError {
				common.LoggerFromContext(req.Context(), r.logger).Error("http.handler.failed", "error", err)
			}
			writeJSON(w, code, map[string]string{
				"error": err.Error(),
				"code":  errorCode(err),
			})
		}
	}
}

func errorCode(err error) string {
	if c := common.ErrorCode(err); c != "" {
		return c
	}
	switch {
	case errors.Is(err, common.ErrNotFound):
		return common.CodeNotFound
	case errors.Is(err, common.ErrInvalidInput):
		return common.CodeValidation
	}
	return "INTERNAL_ERROR"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func invalid(format string, args ...any) error {
	return common.NewAppError(common.CodeValidation, fmt.Sprintf(format, args...), common.ErrInvalidInput)
}

// GET /health
func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	body := map[string]string{"status": "ok", "journal": "disabled"}
	code := http.StatusOK
	if r.deps.Health != nil {
		if err := r.deps.Health(req.Context()); err != nil {
			body["status"] = "degraded"
			body["journal"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			body["journal"] = "ok"
		}
	}
	writeJSON(w, code, body)
}

// POST /v1/analyses
// multipart: document=<file>, narrative=true|false; header X-Narrative-Key optional.
func (r *router) handleAnalyzeUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.deps.MaxUploadBytes+1<<20)
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		return invalid("multipart form: %v", err)
	}
	file, header, err := req.FormFile("document")
	if err != nil {
		return invalid("document file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, r.deps.MaxUploadBytes+1))
	if err != nil {
		return invalid("read document: %v", err)
	}
	if int64(len(data)) > r.deps.MaxUploadBytes {
		return invalid("document exceeds %d bytes", r.deps.MaxUploadBytes)
	}
	narrative, err := parseBool(req.FormValue("narrative"))
	if err != nil {
		return invalid("narrative must be a boolean")
	}

	res, err := r.deps.Analyzer.Analyze(req.Context(), pipeline.Document{
		Name:       header.Filename,
		Data:       data,
		Narrative:  narrative,
		Credential: req.Header.Get(NarrativeKeyHeader),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, viewFromResult(res))
	return nil
}

type textRequest struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
	Narrative    bool   `json:"narrative"`
}

// POST /v1/analyses/text
func (r *router) handleAnalyzeText(w http.ResponseWriter, req *http.Request) error {
	var body textRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, r.deps.MaxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return invalid("invalid json body: %v", err)
	}
	if strings.TrimSpace(body.DocumentName) == "" {
		body.DocumentName = "text"
	}
	res, err := r.deps.Analyzer.Analyze(req.Context(), pipeline.Document{
		Name:       body.DocumentName,
		Text:       body.Text,
		Narrative:  body.Narrative,
		Credential: req.Header.Get(NarrativeKeyHeader),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, viewFromResult(res))
	return nil
}

func (r *router) journal() (repository.AnalysisRepository, error) {
	if r.deps.Journal == nil {
		return nil, fmt.Errorf("analysis journal disabled: %w", common.ErrUnavailable)
	}
	return r.deps.Journal, nil
}

func listFilter(req *http.Request) (repository.ListFilter, error) {
	q := req.URL.Query()
	f := repository.ListFilter{
		PersonType: q.Get("type"),
		Band:       q.Get("band"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, invalid("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if f.PersonType != "" {
		if err := common.NewValidator().Field("type", f.PersonType, common.OneOf("Inconnu", "Morale", "Physique")).Error(); err != nil {
			return f, invalid("%v", err)
		}
	}
	return f, nil
}

// GET /v1/analyses?limit=&type=&band=
func (r *router) handleList(w http.ResponseWriter, req *http.Request) error {
	j, err := r.journal()
	if err != nil {
		return err
	}
	filter, err := listFilter(req)
	if err != nil {
		return err
	}
	rows, err := j.List(req.Context(), filter)
	if err != nil {
		return err
	}
	out := make([]AnalysisView, 0, len(rows))
	for _, a := range rows {
		out = append(out, viewFromAnalysis(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": out, "count": len(out)})
	return nil
}

// GET /v1/analyses/{id}
func (r *router) handleGet(w http.ResponseWriter, req *http.Request) error {
	j, err := r.journal()
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	a, err := j.Get(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, viewFromAnalysis(a))
	return nil
}

// GET /v1/analyses/export.xlsx?limit=&type=&band=
func (r *router) handleExport(w http.ResponseWriter, req *http.Request) error {
	if r.deps.Export == nil {
		return fmt.Errorf("export disabled: %w", common.ErrUnavailable)
	}
	filter, err := listFilter(req)
	if err != nil {
		return err
	}
	data, err := r.deps.Export.ExportAnalysesXLSX(req.Context(), filter)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="kyc-analyses.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		// headers are already sent
		common.LoggerFromContext(req.Context(), r.logger).Warn("http.export.write_failed", "error", err)
	}
	return nil
}

func parseBool(s string) (bool, error) {
	if strings.TrimSpace(s) == "" {
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
