package risk

// Band is the display grade of a score.
type Band string

const (
	BandLow      Band = "FAIBLE"
	BandModerate Band = "MODÉRÉ"
	BandHigh     Band = "ÉLEVÉ"
)

// BandFor maps 0 (or less) to FAIBLE, 1 to MODÉRÉ and anything higher to ÉLEVÉ.
func BandFor(score int) Band {
	switch {
	case score <= 0:
		return BandLow
	case score == 1:
		return BandModerate
	default:
		return BandHigh
	}
}

func (b Band) String() string { return string(b) }
