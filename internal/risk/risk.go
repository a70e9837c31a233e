package risk

import (
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

const (
	FactorRecentEntity = "entreprise récente (<1 an)"
	FactorYoungEntity  = "entreprise jeune (<3 ans)"
	FactorLowCapital   = "capital social faible (<1k€)"

	dateLayout       = "02/01/2006"
	lowCapitalAmount = 1000
)

// Contribution is what one heuristic adds to the score.
type Contribution struct {
	Points int
	Factor string
}

// Heuristic inspects a record at a point in time. The boolean is false when the
// heuristic has nothing to say, including when its input does not parse.
type Heuristic func(rec kyc.Record, now time.Time) (Contribution, bool)

// Assessment is the score with one factor per triggered heuristic, in evaluation order.
type Assessment struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors"`
}

func (a Assessment) Band() Band { return BandFor(a.Score) }

// Heuristics returns the built-in heuristics in evaluation order.
func Heuristics() []Heuristic {
	return []Heuristic{EntityAge, CapitalAdequacy}
}

// Score evaluates the built-in heuristics against rec.
func Score(rec kyc.Record, now time.Time) Assessment {
	return ScoreWith(rec, now, Heuristics()...)
}

// ScoreWith evaluates hs in order and sums their contributions.
func ScoreWith(rec kyc.Record, now time.Time, hs ...Heuristic) Assessment {
	a := Assessment{Factors: []string{}}
	for _, h := range hs {
		c, ok := h(rec, now)
		if !ok {
			continue
		}
		a.Score += c.Points
		a.Factors = append(a.Factors, c.Factor)
	}
	return a
}

// EntityAge flags entities registered less than three years before now. Age is the
// number of whole calendar days since registration divided by 365, rounded down, so a
// registration date in the future counts as recent.
func EntityAge(rec kyc.Record, now time.Time) (Contribution, bool) {
	raw := rec.Get(kyc.FieldDateImmatriculation)
	if raw == "" {
		return Contribution{}, false
	}
	registered, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Contribution{}, false
	}

	switch age := floorDiv(daysBetween(registered, now), 365); {
	case age < 1:
		return Contribution{Points: 2, Factor: FactorRecentEntity}, true
	case age < 3:
		return Contribution{Points: 1, Factor: FactorYoungEntity}, true
	default:
		return Contribution{}, false
	}
}

// CapitalAdequacy flags a share capital below 1000. Only the first token of the field
// is read, with a decimal comma accepted.
func CapitalAdequacy(rec kyc.Record, _ time.Time) (Contribution, bool) {
	tokens := strings.Fields(rec.Get(kyc.FieldCapitalSocial))
	if len(tokens) == 0 {
		return Contribution{}, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(tokens[0], ",", "."), 64)
	if err != nil {
		return Contribution{}, false
	}
	if amount < lowCapitalAmount {
		return Contribution{Points: 1, Factor: FactorLowCapital}, true
	}
	return Contribution{}, false
}

// daysBetween counts calendar days from the date of from to the date of to, both read
// in to's location.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	y, m, d := to.Date()
	b := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
