package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

var now = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

func record(values map[kyc.Field]string) kyc.Record {
	return kyc.NewRecord(values)
}

func registeredOn(t time.Time) kyc.Record {
	return record(map[kyc.Field]string{kyc.FieldDateImmatriculation: t.Format("02/01/2006")})
}

func TestEntityAge(t *testing.T) {
	tests := []struct {
		name   string
		rec    kyc.Record
		want   Contribution
		wantOK bool
	}{
		{"today", registeredOn(now), Contribution{2, FactorRecentEntity}, true},
		{"364 days", registeredOn(now.AddDate(0, 0, -364)), Contribution{2, FactorRecentEntity}, true},
		{"365 days", registeredOn(now.AddDate(0, 0, -365)), Contribution{1, FactorYoungEntity}, true},
		{"two years", registeredOn(now.AddDate(-2, 0, 0)), Contribution{1, FactorYoungEntity}, true},
		{"three years", registeredOn(now.AddDate(-3, 0, 0)), Contribution{}, false},
		{"five years", registeredOn(now.AddDate(-5, 0, 0)), Contribution{}, false},
		{"future", registeredOn(now.AddDate(0, 0, 10)), Contribution{2, FactorRecentEntity}, true},
		{"missing", record(nil), Contribution{}, false},
		{"malformed", record(map[kyc.Field]string{kyc.FieldDateImmatriculation: "2024-01-01"}), Contribution{}, false},
		{"impossible date", record(map[kyc.Field]string{kyc.FieldDateImmatriculation: "31/02/2024"}), Contribution{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EntityAge(tt.rec, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntityAgeIgnoresTimeOfDay(t *testing.T) {
	late := time.Date(2024, time.June, 15, 23, 59, 0, 0, time.UTC)
	early := time.Date(2024, time.June, 15, 0, 1, 0, 0, time.UTC)
	rec := record(map[kyc.Field]string{kyc.FieldDateImmatriculation: "17/06/2023"})

	a, okA := EntityAge(rec, late)
	b, okB := EntityAge(rec, early)
	assert.True(t, okA)
	assert.True(t, okB)
	assert.Equal(t, a, b)
	assert.Equal(t, FactorRecentEntity, a.Factor)
}

func TestCapitalAdequacy(t *testing.T) {
	tests := []struct {
		capital string
		wantOK  bool
	}{
		{"500 EUROS", true},
		{"5000 EUROS", false},
		{"999,99 EUROS", true},
		{"1000 EUROS", false},
		{"1000,00 EUROS", false},
		// grouped thousands read the first group only
		{"5 000,00 EUROS", true},
		{"EUROS", false},
		{"", false},
		{"1.000.000 EUROS", false},
	}
	for _, tt := range tests {
		t.Run(tt.capital, func(t *testing.T) {
			got, ok := CapitalAdequacy(record(map[kyc.Field]string{kyc.FieldCapitalSocial: tt.capital}), now)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, Contribution{1, FactorLowCapital}, got)
			}
		})
	}
}

func TestScoreCombined(t *testing.T) {
	rec := record(map[kyc.Field]string{
		kyc.FieldTypePersonne:        "Morale",
		kyc.FieldDateImmatriculation: now.AddDate(0, -6, 0).Format("02/01/2006"),
		kyc.FieldCapitalSocial:       "100 EUROS",
	})

	a := Score(rec, now)

	assert.Equal(t, 3, a.Score)
	assert.Equal(t, []string{FactorRecentEntity, FactorLowCapital}, a.Factors)
	assert.Equal(t, BandHigh, a.Band())
}

func TestScoreNothingTriggered(t *testing.T) {
	a := Score(kyc.Record{}, now)
	assert.Equal(t, 0, a.Score)
	assert.NotNil(t, a.Factors)
	assert.Empty(t, a.Factors)
	assert.Equal(t, BandLow, a.Band())
}

func TestScoreWithCustomHeuristics(t *testing.T) {
	always := func(kyc.Record, time.Time) (Contribution, bool) { return Contribution{Points: 1, Factor: "x"}, true }
	never := func(kyc.Record, time.Time) (Contribution, bool) { return Contribution{Points: 9, Factor: "y"}, false }

	a := ScoreWith(kyc.Record{}, now, never, always, always)
	assert.Equal(t, Assessment{Score: 2, Factors: []string{"x", "x"}}, a)
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandLow, BandFor(0))
	assert.Equal(t, BandModerate, BandFor(1))
	assert.Equal(t, BandHigh, BandFor(2))
	assert.Equal(t, BandHigh, BandFor(3))
	assert.Equal(t, "MODÉRÉ", BandModerate.String())
}
