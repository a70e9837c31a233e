package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Analysis is one journaled document analysis.
type Analysis struct {
	ID              string
	DocumentName    string
	ContentHash     string
	Record          kyc.Record
	Score           int
	Band            string
	Factors         []string
	NarrativeStatus string
	Narrative       string
	NarrativeError  string
	OCRConfidence   float32
	AnalyzedAt      time.Time
}

// ListFilter narrows List. Zero values mean no constraint.
type ListFilter struct {
	Limit      int
	PersonType string
	Band       string
}

//go:generate mockgen -source=analysis.go -destination=../pipeline/mocks/mock_journal.go -package=mocks
type AnalysisRepository interface {
	Save(ctx context.Context, a *Analysis) error
	Get(ctx context.Context, id string) (*Analysis, error)
	List(ctx context.Context, filter ListFilter) ([]*Analysis, error)
	Count(ctx context.Context) (int, error)
}

type analysisRepository struct {
	store  *Store
	logger *slog.Logger
}

func NewAnalysisRepository(store *Store, logger *slog.Logger) AnalysisRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &analysisRepository{store: store, logger: logger}
}

func (r *analysisRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.store.drv.Dialect())
}

func (r *analysisRepository) Save(ctx context.Context, a *Analysis) error {
	record, err := json.Marshal(a.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	factors := a.Factors
	if factors == nil {
		factors = []string{}
	}
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}

	query, args := r.builder().Insert(analysesTable).
		Columns(analysisColumns...).
		Values(
			a.ID,
			a.DocumentName,
			a.ContentHash,
			string(a.Record.PersonType()),
			a.Record.Get(kyc.FieldSiren),
			a.Record.DisplayName(),
			string(record),
			a.Score,
			a.Band,
			string(factorsJSON),
			a.NarrativeStatus,
			a.Narrative,
			a.NarrativeError,
			float64(a.OCRConfidence),
			a.AnalyzedAt.UnixMilli(),
		).
		Query()
	if err := r.store.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("journal.save.failed", "analysis_id", a.ID, "error", err)
		return common.NewAppError(common.CodeDatabase, "save analysis", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	r.logger.Debug("journal.save.ok", "analysis_id", a.ID, "document", a.DocumentName)
	return nil
}

func (r *analysisRepository) Get(ctx context.Context, id string) (*Analysis, error) {
	b := r.builder()
	query, args := b.Select(analysisColumns...).
		From(b.Table(analysesTable)).
		Where(entsql.EQ("id", id)).
		Query()

	out, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("analysis %s: %w", id, common.ErrNotFound)
	}
	return out[0], nil
}

func (r *analysisRepository) List(ctx context.Context, filter ListFilter) ([]*Analysis, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	b := r.builder()
	sel := b.Select(analysisColumns...).From(b.Table(analysesTable))
	var preds []*entsql.Predicate
	if filter.PersonType != "" {
		preds = append(preds, entsql.EQ("person_type", filter.PersonType))
	}
	if filter.Band != "" {
		preds = append(preds, entsql.EQ("band", filter.Band))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	query, args := sel.OrderBy(entsql.Desc("analyzed_at"), entsql.Asc("id")).Limit(limit).Query()
	return r.query(ctx, query, args)
}

func (r *analysisRepository) Count(ctx context.Context) (int, error) {
	b := r.builder()
	query, args := b.Select(entsql.Count("*")).From(b.Table(analysesTable)).Query()

	var rows entsql.Rows
	if err := r.store.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, common.NewAppError(common.CodeDatabase, "count analyses", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	return n, rows.Err()
}

func (r *analysisRepository) query(ctx context.Context, query string, args []any) ([]*Analysis, error) {
	var rows entsql.Rows
	if err := r.store.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("journal.query.failed", "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "query analyses", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}

func scanAnalysis(rows *entsql.Rows) (*Analysis, error) {
	var (
		a                          Analysis
		personType, siren, display string
		record, factors            string
		confidence                 float64
		analyzedAt                 int64
	)
	err := rows.Scan(
		&a.ID,
		&a.DocumentName,
		&a.ContentHash,
		&personType,
		&siren,
		&display,
		&record,
		&a.Score,
		&a.Band,
		&factors,
		&a.NarrativeStatus,
		&a.Narrative,
		&a.NarrativeError,
		&confidence,
		&analyzedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(record), &a.Record); err != nil {
		return nil, fmt.Errorf("analysis %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
		return nil, fmt.Errorf("analysis %s: decode factors: %w", a.ID, err)
	}
	a.OCRConfidence = float32(confidence)
	a.AnalyzedAt = time.UnixMilli(analyzedAt).UTC()
	return &a, nil
}
