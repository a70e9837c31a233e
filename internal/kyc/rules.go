package kyc

import (
	"regexp"
	"strings"
)

// Separator describes what may sit between a label and its value.
type Separator int

const (
	// SepColon allows optional whitespace, one optional ':' or '-', optional whitespace.
	SepColon Separator = iota
	// SepGap skips any text on the same line, lazily.
	SepGap
)

// Shape is the capture pattern applied after the separator.
type Shape int

const (
	ShapeLine    Shape = iota // rest of the line
	ShapeDate                 // DD/MM/YYYY
	ShapeSiren                // 9 digits, optionally grouped 3+3+3
	ShapeCapital              // digits and punctuation followed by EURO or EUROS
)

var separatorPatterns = map[Separator]string{
	SepColon: `\s*[:\-]?\s*`,
	SepGap:   `.*?`,
}

var shapePatterns = map[Shape]string{
	ShapeLine:    `(.+)`,
	ShapeDate:    `(\d{2}/\d{2}/\d{4})`,
	ShapeSiren:   `(\d{3} ?\d{3} ?\d{3})`,
	ShapeCapital: `([\d\s\.,]+ EUROS?)`,
}

// apostropheClass matches the apostrophe variants OCR engines emit.
const apostropheClass = `['’‘ʼ]`

// Rule is one labeled extraction. Label text is matched exactly as written,
// accents and apostrophes included, unless Options.FoldApostrophes is set.
type Rule struct {
	Field     Field
	Label     string
	Separator Separator
	Shape     Shape
	// Variants lists the document types the rule runs for; empty means all.
	Variants []PersonType
}

// AppliesTo reports whether the rule runs for documents of type t.
func (r Rule) AppliesTo(t PersonType) bool {
	if len(r.Variants) == 0 {
		return true
	}
	for _, v := range r.Variants {
		if v == t {
			return true
		}
	}
	return false
}

// Pattern renders the rule as a regular expression with a single capture group.
func (r Rule) Pattern(opts Options) string {
	label := regexp.QuoteMeta(r.Label)
	if opts.FoldApostrophes {
		label = strings.NewReplacer("'", apostropheClass, "’", apostropheClass).Replace(label)
	}
	return label + separatorPatterns[r.Separator] + shapePatterns[r.Shape]
}

var (
	registered = []PersonType{PersonMorale, PersonPhysique}
	moraleOnly = []PersonType{PersonMorale}
	physique   = []PersonType{PersonPhysique}
)

var defaultRules = []Rule{
	{Field: FieldSiren, Label: "Immatriculation", Separator: SepGap, Shape: ShapeSiren, Variants: registered},
	{Field: FieldDateImmatriculation, Label: "Date d'immatriculation", Shape: ShapeDate, Variants: registered},

	{Field: FieldNomEntreprise, Label: "Dénomination ou raison sociale", Variants: moraleOnly},
	{Field: FieldFormeJuridique, Label: "Forme juridique", Variants: moraleOnly},
	{Field: FieldCapitalSocial, Label: "Capital social", Shape: ShapeCapital, Variants: moraleOnly},
	{Field: FieldAdresseSiege, Label: "Adresse du siège", Variants: moraleOnly},

	{Field: FieldNomPrenom, Label: "Nom, prénoms", Variants: physique},
	{Field: FieldDateNaissance, Label: "Date et lieu de naissance", Separator: SepGap, Shape: ShapeDate, Variants: physique},
	{Field: FieldNationalite, Label: "Nationalité", Variants: physique},
	{Field: FieldAdressePersonnelle, Label: "Domicile personnel", Variants: physique},

	{Field: FieldAdresseEtablissement, Label: "Adresse de l’établissement"},
	{Field: FieldActivite, Label: "Activité(s) exercée(s)"},
	{Field: FieldDateDebutActivite, Label: "Date de commencement d’activité", Shape: ShapeDate},
	{Field: FieldModeExploitation, Label: "Mode d’exploitation"},
}

// Rules returns a copy of the built-in rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
