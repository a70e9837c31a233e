package kyc

import (
	"fmt"
	"regexp"
	"strings"
)

// Options tunes label matching.
type Options struct {
	// FoldApostrophes lets ' ’ ‘ ʼ match each other inside labels.
	FoldApostrophes bool
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Extractor applies a compiled rule table to normalized text. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	opts  Options
	rules []compiledRule
}

// NewExtractor compiles the built-in rule table.
func NewExtractor(opts Options) *Extractor {
	e, err := NewExtractorWithRules(opts, defaultRules)
	if err != nil {
		// the built-in table is covered by tests
		panic(err)
	}
	return e
}

// NewExtractorWithRules compiles a custom rule table. Rules run in slice order.
func NewExtractorWithRules(opts Options, rules []Rule) (*Extractor, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Field <= FieldTypePersonne || r.Field >= fieldCount {
			return nil, fmt.Errorf("rule %q: field %v cannot be extracted", r.Label, r.Field)
		}
		if _, ok := shapePatterns[r.Shape]; !ok {
			return nil, fmt.Errorf("rule %q: unknown shape %d", r.Label, r.Shape)
		}
		if _, ok := separatorPatterns[r.Separator]; !ok {
			return nil, fmt.Errorf("rule %q: unknown separator %d", r.Label, r.Separator)
		}
		re, err := regexp.Compile(r.Pattern(opts))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Label, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return &Extractor{opts: opts, rules: compiled}, nil
}

// Extract classifies normalized text and fills every applicable field. Fields whose
// rule does not match, or that do not apply to the variant, stay empty.
func (e *Extractor) Extract(normalized string) Record {
	var rec Record
	kind := Classify(normalized)
	rec.values[FieldTypePersonne] = string(kind)

	for _, r := range e.rules {
		if !r.AppliesTo(kind) {
			continue
		}
		if v, ok := r.match(normalized); ok {
			rec.values[r.Field] = v
		}
	}
	return rec
}

func (r compiledRule) match(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	return v, v != ""
}

var defaultExtractor = NewExtractor(Options{})

// Extract runs the built-in rules with exact label matching.
func Extract(normalized string) Record {
	return defaultExtractor.Extract(normalized)
}
