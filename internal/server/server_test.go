package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/export"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
	"github.com/joseph-ayodele/kyc-extractor/internal/metrics"
	"github.com/joseph-ayodele/kyc-extractor/internal/ocr"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline/mocks"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

const kbis = `Extrait Kbis
IDENTIFICATION DE LA PERSONNE MORALE
Immatriculation au RCS, numéro 123 456 789 R.C.S. Paris
Date d'immatriculation : 15/12/2023
Dénomination ou raison sociale : JEUNE POUSSE SAS
Capital social : 100 EUROS`

var now = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ocr      *mocks.MockRecognizer
	narrator *mocks.MockRequester
	journal  *mocks.MockAnalysisRepository
	analyzer *pipeline.Analyzer
	registry *prometheus.Registry
	logger   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		ocr:      mocks.NewMockRecognizer(ctrl),
		narrator: mocks.NewMockRequester(ctrl),
		journal:  mocks.NewMockAnalysisRepository(ctrl),
		registry: prometheus.NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	f.analyzer = pipeline.NewAnalyzer(f.ocr, nil, f.logger,
		pipeline.WithNarrator(f.narrator),
		pipeline.WithJournal(f.journal),
		pipeline.WithMetrics(metrics.New(f.registry)),
		pipeline.WithClock(func() time.Time { return now }),
	)
	return f
}

func storedAnalysis(id string) *repository.Analysis {
	return &repository.Analysis{
		ID:              id,
		DocumentName:    "kbis.png",
		Record:          kyc.NewRecord(map[kyc.Field]string{kyc.FieldTypePersonne: "Morale", kyc.FieldSiren: "123 456 789"}),
		Score:           2,
		Band:            "ÉLEVÉ",
		Factors:         []string{"entreprise récente (<1 an)"},
		NarrativeStatus: "SKIPPED",
		AnalyzedAt:      now,
	}
}

// ---- gRPC ----

func dialBufconn(t *testing.T, f *fixture) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(NewAnalysisServer(f.analyzer, f.journal, f.logger), f.logger)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCAnalyzeImage(t *testing.T) {
	f := newFixture(t)
	f.ocr.EXPECT().Recognize(gomock.Any(), "kbis.png", []byte("png-bytes")).
		Return(ocr.ExtractionResult{Text: kbis, Confidence: 0.7}, nil)
	f.narrator.EXPECT().Narrate(gomock.Any(), gomock.Any(), "sk-call").Return("", errors.New("status 401"))
	f.journal.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	client := NewAnalysisServiceClient(dialBufconn(t, f))
	req, err := structpb.NewStruct(map[string]any{
		"document_name": "kbis.png",
		"image_base64":  base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		"narrative":     true,
		"credential":    "sk-call",
	})
	require.NoError(t, err)

	resp, err := client.Analyze(context.Background(), req)
	require.NoError(t, err)

	m := resp.AsMap()
	assert.Equal(t, "kbis.png", m["document_name"])
	assert.EqualValues(t, 3, m["score"])
	assert.Equal(t, "ÉLEVÉ", m["band"])
	record := m["record"].(map[string]any)
	assert.Equal(t, "Morale", record["type_personne"])
	assert.Equal(t, "JEUNE POUSSE SAS", record["nom_entreprise"])
	assert.Len(t, record, 15)
	narrative := m["narrative"].(map[string]any)
	assert.Equal(t, "FAILED", narrative["status"])
	assert.Equal(t, "status 401", narrative["error"])
}

func TestGRPCAnalyzeErrors(t *testing.T) {
	f := newFixture(t)
	f.ocr.EXPECT().Recognize(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ocr.ExtractionResult{}, ocr.ErrUnsupportedImage)
	client := NewAnalysisServiceClient(dialBufconn(t, f))

	tests := []struct {
		name string
		req  map[string]any
		code codes.Code
	}{
		{"missing name", map[string]any{"text": kbis}, codes.InvalidArgument},
		{"missing content", map[string]any{"document_name": "x.png"}, codes.InvalidArgument},
		{"bad base64", map[string]any{"document_name": "x.png", "image_base64": "!!!"}, codes.InvalidArgument},
		{"unsupported image", map[string]any{"document_name": "x.pdf", "image_base64": base64.StdEncoding.EncodeToString([]byte("%PDF"))}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tt.req)
			require.NoError(t, err)
			_, err = client.Analyze(context.Background(), req)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestGRPCGetAnalysis(t *testing.T) {
	f := newFixture(t)
	id := "7b0a3c1e-4b8f-4c4e-9a55-2f6f0c1d2e3a"
	f.journal.EXPECT().Get(gomock.Any(), id).Return(storedAnalysis(id), nil)
	missing := "0b0a3c1e-4b8f-4c4e-9a55-2f6f0c1d2e3a"
	f.journal.EXPECT().Get(gomock.Any(), missing).Return(nil, common.WrapError(common.ErrNotFound, "analysis"))

	client := NewAnalysisServiceClient(dialBufconn(t, f))

	resp, err := client.GetAnalysis(context.Background(), wrapperspb.String(id))
	require.NoError(t, err)
	assert.Equal(t, id, resp.AsMap()["id"])
	assert.Equal(t, "SKIPPED", resp.AsMap()["narrative"].(map[string]any)["status"])

	_, err = client.GetAnalysis(context.Background(), wrapperspb.String(missing))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetAnalysis(context.Background(), wrapperspb.String("not-a-uuid"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCHealth(t *testing.T) {
	conn := dialBufconn(t, newFixture(t))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: AnalysisServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

// ---- HTTP ----

func newHTTP(t *testing.T, f *fixture, journal repository.AnalysisRepository, health func(context.Context) error) *httptest.Server {
	t.Helper()
	var exp *export.Service
	if journal != nil {
		exp = export.NewService(journal, f.logger)
	}
	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{
		Analyzer:    f.analyzer,
		Journal:     journal,
		Export:      exp,
		Gatherer:    f.registry,
		Health:      health,
		CORSOrigins: []string{"https://kyc.example.fr"},
		Logger:      f.logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHTTPUpload(t *testing.T) {
	f := newFixture(t)
	f.ocr.EXPECT().Recognize(gomock.Any(), "kbis.png", []byte("png-bytes")).
		Return(ocr.ExtractionResult{Text: kbis, Confidence: 0.7}, nil)
	f.narrator.EXPECT().Narrate(gomock.Any(), gomock.Any(), "sk-header").Return("- Vérifier le capital", nil)
	f.journal.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	srv := newHTTP(t, f, f.journal, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("document", "kbis.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png-bytes"))
	require.NoError(t, mw.WriteField("narrative", "true"))
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(NarrativeKeyHeader, "sk-header")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var view AnalysisView
	decode(t, resp, &view)
	assert.Equal(t, 3, view.Score)
	assert.Equal(t, "ÉLEVÉ", view.Band)
	assert.Equal(t, "OK", string(view.Narrative.Status))
	assert.Equal(t, "- Vérifier le capital", view.Narrative.Text)
	assert.Equal(t, "123 456 789", view.Record.Get(kyc.FieldSiren))
}

func TestHTTPUploadErrors(t *testing.T) {
	f := newFixture(t)
	f.ocr.EXPECT().Recognize(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ocr.ExtractionResult{}, ocr.ErrUnsupportedImage)
	srv := newHTTP(t, f, f.journal, nil)

	// no file
	resp, err := http.Post(srv.URL+"/v1/analyses", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("document", "scan.pdf")
	_, _ = fw.Write([]byte("%PDF-1.7"))
	_ = mw.Close()
	resp, err = http.Post(srv.URL+"/v1/analyses", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var e map[string]string
	decode(t, resp, &e)
	assert.Equal(t, common.CodeImage, e["code"])
}

func TestHTTPAnalyzeText(t *testing.T) {
	f := newFixture(t)
	f.journal.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	srv := newHTTP(t, f, f.journal, nil)

	resp, err := http.Post(srv.URL+"/v1/analyses/text", "application/json",
		strings.NewReader(`{"document_name":"kbis.txt","text":`+jsonString(kbis)+`}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view AnalysisView
	decode(t, resp, &view)
	assert.Equal(t, "SKIPPED", string(view.Narrative.Status))
	assert.Equal(t, kyc.PersonMorale, view.Record.PersonType())

	resp, err = http.Post(srv.URL+"/v1/analyses/text", "application/json", strings.NewReader(`{"text":""}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/v1/analyses/text", "application/json", strings.NewReader(`{"bogus":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTPListGetExport(t *testing.T) {
	f := newFixture(t)
	id := "7b0a3c1e-4b8f-4c4e-9a55-2f6f0c1d2e3a"
	f.journal.EXPECT().List(gomock.Any(), repository.ListFilter{Limit: 5, PersonType: "Morale"}).
		Return([]*repository.Analysis{storedAnalysis(id)}, nil)
	f.journal.EXPECT().Get(gomock.Any(), id).Return(storedAnalysis(id), nil)
	f.journal.EXPECT().Get(gomock.Any(), "missing").Return(nil, common.WrapError(common.ErrNotFound, "analysis missing"))
	f.journal.EXPECT().List(gomock.Any(), repository.ListFilter{}).Return([]*repository.Analysis{storedAnalysis(id)}, nil)
	srv := newHTTP(t, f, f.journal, nil)

	resp, err := http.Get(srv.URL + "/v1/analyses?limit=5&type=Morale")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Analyses []AnalysisView `json:"analyses"`
		Count    int            `json:"count"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Analyses[0].ID)

	resp, err = http.Get(srv.URL + "/v1/analyses?type=Alien")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/analyses/" + id)
	require.NoError(t, err)
	var one AnalysisView
	decode(t, resp, &one)
	assert.Equal(t, "ÉLEVÉ", one.Band)

	resp, err = http.Get(srv.URL + "/v1/analyses/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/analyses/export.xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	data, _ := io.ReadAll(resp.Body)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

// brokenWriter accepts headers but fails every body write, like a dropped client.
type brokenWriter struct {
	header http.Header
	status []int
	writes int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(code int) { w.status = append(w.status, code) }
func (w *brokenWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("connection reset by peer")
}

func TestHTTPExportWriteFailureSendsNoErrorBody(t *testing.T) {
	f := newFixture(t)
	f.journal.EXPECT().List(gomock.Any(), gomock.Any()).Return([]*repository.Analysis{storedAnalysis("a1")}, nil)
	h := NewHTTPHandler(HTTPDeps{
		Analyzer: f.analyzer,
		Journal:  f.journal,
		Export:   export.NewService(f.journal, f.logger),
		Gatherer: f.registry,
		Logger:   f.logger,
	})

	w := &brokenWriter{header: http.Header{}}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/analyses/export.xlsx", nil))

	assert.Equal(t, []int{http.StatusOK}, w.status)
	assert.Equal(t, 1, w.writes)
	assert.Equal(t, xlsxContentType, w.header.Get("Content-Type"))
}

func TestHTTPJournalDisabled(t *testing.T) {
	f := newFixture(t)
	srv := newHTTP(t, f, nil, nil)

	for _, path := range []string{"/v1/analyses", "/v1/analyses/abc", "/v1/analyses/export.xlsx"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	srv := newHTTP(t, f, f.journal, func(context.Context) error { return nil })

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var h map[string]string
	decode(t, resp, &h)
	assert.Equal(t, map[string]string{"status": "ok", "journal": "ok"}, h)

	down := newHTTP(t, f, f.journal, func(context.Context) error { return errors.New("connection refused") })
	resp, err = http.Get(down.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	f.journal.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	_, err = f.analyzer.AnalyzeText(context.Background(), "kbis.txt", kbis)
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(text), `kyc_analyses_total{type_personne="Morale"} 1`)
}

func TestHTTPCORSPreflight(t *testing.T) {
	srv := newHTTP(t, newFixture(t), nil, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/v1/analyses", nil)
	req.Header.Set("Origin", "https://kyc.example.fr")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", NarrativeKeyHeader)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://kyc.example.fr", resp.Header.Get("Access-Control-Allow-Origin"))
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
