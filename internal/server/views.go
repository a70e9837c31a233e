package server

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/constants"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

// AnalysisView is the wire shape shared by the HTTP and gRPC surfaces.
type AnalysisView struct {
	ID             string                    `json:"id"`
	DocumentName   string                    `json:"document_name"`
	ContentHash    string                    `json:"content_hash,omitempty"`
	Record         kyc.Record                `json:"record"`
	Score          int                       `json:"score"`
	Band           string                    `json:"band"`
	Factors        []string                  `json:"factors"`
	Narrative      pipeline.NarrativeOutcome `json:"narrative"`
	OCRConfidence  float32                   `json:"ocr_confidence"`
	NormalizedText string                    `json:"normalized_text,omitempty"`
	AnalyzedAt     time.Time                 `json:"analyzed_at"`
}

func viewFromResult(r *pipeline.Result) AnalysisView {
	return AnalysisView{
		ID:             r.ID,
		DocumentName:   r.DocumentName,
		ContentHash:    r.ContentHash,
		Record:         r.Record,
		Score:          r.Assessment.Score,
		Band:           r.Band.String(),
		Factors:        nonNil(r.Assessment.Factors),
		Narrative:      r.Narrative,
		OCRConfidence:  r.OCRConfidence,
		NormalizedText: r.NormalizedText,
		AnalyzedAt:     r.AnalyzedAt,
	}
}

func viewFromAnalysis(a *repository.Analysis) AnalysisView {
	return AnalysisView{
		ID:           a.ID,
		DocumentName: a.DocumentName,
		ContentHash:  a.ContentHash,
		Record:       a.Record,
		Score:        a.Score,
		Band:         a.Band,
		Factors:      nonNil(a.Factors),
		Narrative: pipeline.NarrativeOutcome{
			Status: constants.NarrativeStatus(a.NarrativeStatus),
			Text:   a.Narrative,
			Error:  a.NarrativeError,
		},
		OCRConfidence: a.OCRConfidence,
		AnalyzedAt:    a.AnalyzedAt,
	}
}

func (v AnalysisView) JSON() ([]byte, error) { return json.Marshal(v) }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
