package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAnalysis("Morale", "ÉLEVÉ", 11)
	m.ObserveAnalysis("Morale", "FAIBLE", 9)
	m.ObserveNarrative("FAILED")
	m.ObserveFailure("ocr")
	m.ObserveStage("extract", 3*time.Millisecond)
	m.ObserveOCRConfidence(0.8)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("Morale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RiskBandTotal.WithLabelValues("ÉLEVÉ")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NarrativeTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailuresTotal.WithLabelValues("ocr")))

	n, err := testutil.GatherAndCount(reg, "kyc_analysis_latency_seconds", "kyc_fields_extracted")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAnalysis("Inconnu", "FAIBLE", 1)
		m.ObserveNarrative("OK")
		m.ObserveFailure("journal")
		m.ObserveStage("ocr", time.Second)
		m.ObserveOCRConfidence(0.1)
	})
}
