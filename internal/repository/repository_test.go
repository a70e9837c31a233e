package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

type JournalSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	repo  AnalysisRepository
}

func TestJournalSuite(t *testing.T) {
	suite.Run(t, new(JournalSuite))
}

func (s *JournalSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := Open(s.ctx, Config{
		Driver: DriverSQLite,
		DSN:    "file:" + filepath.Join(s.T().TempDir(), "kyc.db"),
	}, logger)
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(s.ctx))
	s.store = store
	s.repo = NewAnalysisRepository(store, logger)
}

func (s *JournalSuite) TearDownTest() {
	s.store.Close()
}

func analysis(id string, at time.Time, kind kyc.PersonType, band string) *Analysis {
	return &Analysis{
		ID:           id,
		DocumentName: id + ".png",
		ContentHash:  fmt.Sprintf("%064d", 7),
		Record: kyc.NewRecord(map[kyc.Field]string{
			kyc.FieldTypePersonne:  string(kind),
			kyc.FieldSiren:         "123 456 789",
			kyc.FieldNomEntreprise: "ACME SARL",
			kyc.FieldCapitalSocial: "100 EUROS",
		}),
		Score:           3,
		Band:            band,
		Factors:         []string{"entreprise récente (<1 an)", "capital social faible (<1k€)"},
		NarrativeStatus: "FAILED",
		NarrativeError:  "non-2xx status: 401",
		OCRConfidence:   0.75,
		AnalyzedAt:      at,
	}
}

func (s *JournalSuite) TestSaveAndGet() {
	at := time.Date(2024, 6, 15, 10, 0, 0, 123_000_000, time.UTC)
	want := analysis("a1", at, kyc.PersonMorale, "ÉLEVÉ")
	s.Require().NoError(s.repo.Save(s.ctx, want))

	got, err := s.repo.Get(s.ctx, "a1")
	s.Require().NoError(err)
	s.Equal(want.ID, got.ID)
	s.Equal(want.DocumentName, got.DocumentName)
	s.Equal(want.ContentHash, got.ContentHash)
	s.Equal(want.Record, got.Record)
	s.Equal(want.Factors, got.Factors)
	s.Equal("ÉLEVÉ", got.Band)
	s.Equal(3, got.Score)
	s.Equal("FAILED", got.NarrativeStatus)
	s.Equal("non-2xx status: 401", got.NarrativeError)
	s.InDelta(0.75, got.OCRConfidence, 1e-6)
	s.True(at.Equal(got.AnalyzedAt))
}

func (s *JournalSuite) TestGetMissing() {
	_, err := s.repo.Get(s.ctx, "nope")
	s.ErrorIs(err, common.ErrNotFound)
}

func (s *JournalSuite) TestSaveDuplicateID() {
	a := analysis("dup", time.Now(), kyc.PersonMorale, "ÉLEVÉ")
	s.Require().NoError(s.repo.Save(s.ctx, a))
	err := s.repo.Save(s.ctx, a)
	s.ErrorIs(err, common.ErrDatabase)
}

func (s *JournalSuite) TestListNewestFirstWithFilters() {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.repo.Save(s.ctx, analysis("old", base, kyc.PersonMorale, "ÉLEVÉ")))
	s.Require().NoError(s.repo.Save(s.ctx, analysis("mid", base.Add(time.Hour), kyc.PersonPhysique, "FAIBLE")))
	s.Require().NoError(s.repo.Save(s.ctx, analysis("new", base.Add(2*time.Hour), kyc.PersonMorale, "FAIBLE")))

	all, err := s.repo.List(s.ctx, ListFilter{})
	s.Require().NoError(err)
	s.Equal([]string{"new", "mid", "old"}, ids(all))

	limited, err := s.repo.List(s.ctx, ListFilter{Limit: 2})
	s.Require().NoError(err)
	s.Equal([]string{"new", "mid"}, ids(limited))

	morale, err := s.repo.List(s.ctx, ListFilter{PersonType: "Morale"})
	s.Require().NoError(err)
	s.Equal([]string{"new", "old"}, ids(morale))

	both, err := s.repo.List(s.ctx, ListFilter{PersonType: "Morale", Band: "FAIBLE"})
	s.Require().NoError(err)
	s.Equal([]string{"new"}, ids(both))

	n, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *JournalSuite) TestMigrateIsIdempotent() {
	s.NoError(s.store.Migrate(s.ctx))
	s.NoError(s.store.HealthCheck(s.ctx, time.Second))
	s.Equal("sqlite3", s.store.Dialect())
}

func (s *JournalSuite) TestMigrateCreatesAnalyzedAtIndex() {
	var name string
	err := s.store.drv.DB().QueryRowContext(s.ctx,
		"SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", analyzedAtIndex).Scan(&name)
	s.Require().NoError(err)
	s.Equal(analyzedAtIndex, name)
}

func (s *JournalSuite) TestColumnsAreNotNull() {
	_, err := s.store.drv.DB().ExecContext(s.ctx,
		"INSERT INTO "+analysesTable+" (id) VALUES ('partial')")
	s.Error(err)
}

func ids(as []*Analysis) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}

func TestAnalysesDDLPerDialect(t *testing.T) {
	pg := analysesDDL(dialect.Postgres)
	require.Len(t, pg, 2)
	assert.True(t, strings.HasPrefix(pg[0], "CREATE TABLE IF NOT EXISTS kyc_analyses ("))
	assert.Contains(t, pg[0], "record text NOT NULL")
	assert.Contains(t, pg[0], "PRIMARY KEY (id)")
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS kyc_analyses_analyzed_at ON kyc_analyses (analyzed_at)", pg[1])

	my := analysesDDL(dialect.MySQL)
	require.Len(t, my, 1)
	assert.Contains(t, my[0], "record longtext NOT NULL")
	assert.Contains(t, my[0], "INDEX kyc_analyses_analyzed_at (analyzed_at)")
	assert.Equal(t, len(analysisColumns), strings.Count(my[0], "NOT NULL"))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
