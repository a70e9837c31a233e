package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for document analyses.
type Metrics struct {
	AnalysesTotal      *prometheus.CounterVec
	RiskBandTotal      *prometheus.CounterVec
	NarrativeTotal     *prometheus.CounterVec
	StageFailuresTotal *prometheus.CounterVec
	FieldsExtracted    prometheus.Histogram
	AnalysisLatency    *prometheus.HistogramVec
	OCRConfidence      prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_analyses_total",
			Help: "Total number of completed analyses, labeled by detected person type",
		}, []string{"type_personne"}),
		RiskBandTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_risk_band_total",
			Help: "Total number of analyses per risk band",
		}, []string{"band"}),
		NarrativeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_narrative_requests_total",
			Help: "Narrative outcomes, labeled by status",
		}, []string{"status"}),
		StageFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_stage_failures_total",
			Help: "Failures per pipeline stage",
		}, []string{"stage"}),
		FieldsExtracted: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_fields_extracted",
			Help:    "Number of non-empty fields per analysis",
			Buckets: []float64{1, 2, 4, 6, 8, 10, 12, 15},
		}),
		AnalysisLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_analysis_latency_seconds",
			Help:    "Latency of analysis stages in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		OCRConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_ocr_confidence",
			Help:    "Blended OCR confidence per document",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
	}
}

func (m *Metrics) ObserveAnalysis(personType, band string, fields int) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(personType).Inc()
	m.RiskBandTotal.WithLabelValues(band).Inc()
	m.FieldsExtracted.Observe(float64(fields))
}

func (m *Metrics) ObserveNarrative(status string) {
	if m == nil {
		return
	}
	m.NarrativeTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveOCRConfidence(c float32) {
	if m == nil {
		return
	}
	m.OCRConfidence.Observe(float64(c))
}
