package narrative

import (
	"strings"

	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

// BuildPrompt renders the French review request for rec. Missing values are replaced
// by fixed placeholders so the prompt shape never changes.
func BuildPrompt(rec kyc.Record) string {
	name := rec.DisplayName()
	if name == "" {
		name = "Inconnu"
	}

	var b strings.Builder
	b.WriteString("Analyse ce document KYC et donne une évaluation professionnelle:\n")
	b.WriteString("- Type: " + string(rec.PersonType()) + "\n")
	b.WriteString("- Nom: " + name + "\n")
	b.WriteString("- SIREN: " + orDefault(rec.Get(kyc.FieldSiren), "Non fourni") + "\n")
	b.WriteString("- Date immatriculation: " + orDefault(rec.Get(kyc.FieldDateImmatriculation), "Inconnue") + "\n")
	b.WriteString("- Activité: " + orDefault(rec.Get(kyc.FieldActivite), "Non spécifiée") + "\n")
	b.WriteString("\n")
	b.WriteString("Fais une analyse concise (3-5 points max) des risques potentiels et des vérifications recommandées.\n")
	b.WriteString("Réponds en français sous forme de liste à puces.")
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
