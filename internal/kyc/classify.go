package kyc

import "strings"

const (
	markerMorale   = "IDENTIFICATION DE LA PERSONNE MORALE"
	markerPhysique = "IDENTIFICATION DE LA PERSONNE PHYSIQUE"
)

// Classify decides the document variant from its section headers. The legal-entity
// marker is checked first, so a document carrying both headers is Morale.
func Classify(normalized string) PersonType {
	upper := strings.ToUpper(normalized)
	switch {
	case strings.Contains(upper, markerMorale):
		return PersonMorale
	case strings.Contains(upper, markerPhysique):
		return PersonPhysique
	default:
		return PersonUnknown
	}
}
