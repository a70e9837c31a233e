package kyc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PersonType is the document variant detected by Classify.
type PersonType string

const (
	PersonUnknown  PersonType = "Inconnu"
	PersonMorale   PersonType = "Morale"
	PersonPhysique PersonType = "Physique"
)

// ParsePersonType maps a stored value back to a PersonType. Anything else is PersonUnknown.
func ParsePersonType(s string) PersonType {
	switch PersonType(s) {
	case PersonMorale:
		return PersonMorale
	case PersonPhysique:
		return PersonPhysique
	default:
		return PersonUnknown
	}
}

// Field identifies one of the fifteen KYC fields. The order of declaration is the
// order used for display and JSON encoding.
type Field int

const (
	FieldTypePersonne Field = iota
	FieldSiren
	FieldDateImmatriculation
	FieldNomEntreprise
	FieldFormeJuridique
	FieldCapitalSocial
	FieldAdresseSiege
	FieldNomPrenom
	FieldDateNaissance
	FieldNationalite
	FieldAdressePersonnelle
	FieldAdresseEtablissement
	FieldActivite
	FieldDateDebutActivite
	FieldModeExploitation

	fieldCount
)

var fieldNames = [fieldCount]string{
	"type_personne",
	"siren",
	"date_immatriculation",
	"nom_entreprise",
	"forme_juridique",
	"capital_social",
	"adresse_siege",
	"nom_prenom",
	"date_naissance",
	"nationalite",
	"adresse_personnelle",
	"adresse_etablissement",
	"activite",
	"date_debut_activite",
	"mode_exploitation",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Fields returns every field in canonical order.
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// FieldByName resolves a snake_case field name.
func FieldByName(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// Record holds the extracted values. The zero value is a valid, empty record of
// unknown type; every field is always present.
type Record struct {
	values [fieldCount]string
}

// NewRecord builds a record from explicit values. Unknown person types collapse to
// PersonUnknown so the record never carries an out-of-range type.
func NewRecord(values map[Field]string) Record {
	var r Record
	for f, v := range values {
		if f < 0 || f >= fieldCount {
			continue
		}
		r.values[f] = v
	}
	r.values[FieldTypePersonne] = string(ParsePersonType(r.values[FieldTypePersonne]))
	return r
}

// Get returns the value of f, or "" for an unknown field.
func (r Record) Get(f Field) string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	if f == FieldTypePersonne {
		return string(r.PersonType())
	}
	return r.values[f]
}

func (r Record) PersonType() PersonType {
	return ParsePersonType(r.values[FieldTypePersonne])
}

// DisplayName is the entity name, else the person name, else "".
func (r Record) DisplayName() string {
	if v := r.Get(FieldNomEntreprise); v != "" {
		return v
	}
	return r.Get(FieldNomPrenom)
}

// Map returns a name -> value copy containing all fifteen keys.
func (r Record) Map() map[string]string {
	out := make(map[string]string, fieldCount)
	for _, f := range Fields() {
		out[f.String()] = r.Get(f)
	}
	return out
}

// Found returns the non-empty fields in canonical order.
func (r Record) Found() []Field {
	var out []Field
	for _, f := range Fields() {
		if r.Get(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

// MarshalJSON encodes the record as an object with keys in canonical order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(f.String())
		v, err := json.Marshal(r.Get(f))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object produced by MarshalJSON. Unknown keys are ignored
// and missing keys stay empty.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	values := make(map[Field]string, len(m))
	for k, v := range m {
		if f, ok := FieldByName(k); ok {
			values[f] = v
		}
	}
	*r = NewRecord(values)
	return nil
}
