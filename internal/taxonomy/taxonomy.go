// Package taxonomy holds the process-wide static code tables: high-value
// codes, add-on codes, code families, and per-code review overrides. A
// Taxonomy is built once, validated at construction, and injected into the
// derivation engine and reconciler; it is never mutated at runtime.
package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/pulmcoder/internal/model"
)

// Taxonomy is the immutable code-classification configuration.
type Taxonomy struct {
	// HighValueCodes are codes whose unilateral appearance or disappearance
	// always warrants scrutiny.
	HighValueCodes map[string]bool `yaml:"-"`
	// AddOnCodes are codes that are inherently optional companions to a
	// primary code. Stored bare (no "+" marker).
	AddOnCodes map[string]bool `yaml:"-"`
	// CodeFamilies maps code → family id. Codes sharing a family are treated
	// as low-severity variants of the same clinical event.
	CodeFamilies map[string]string `yaml:"-"`
	// ReviewOverrides maps code → a stricter ML-probability threshold below
	// which the confidence combiner forces review even when the generic rule
	// would not. Empty by default; populated per-site from audit history.
	ReviewOverrides map[string]float64 `yaml:"-"`
}

// yamlTaxonomy is the on-disk YAML structure.
type yamlTaxonomy struct {
	HighValueCodes  []string           `yaml:"high_value_codes"`
	AddOnCodes      []string           `yaml:"add_on_codes"`
	CodeFamilies    map[string]string  `yaml:"code_families"`
	ReviewOverrides map[string]float64 `yaml:"review_overrides"`
}

// Default returns the built-in taxonomy for interventional pulmonology.
func Default() *Taxonomy {
	return &Taxonomy{
		HighValueCodes: set(
			model.CodeEBUSLow,
			model.CodeEBUSHigh,
			model.CodeTumorDestruction,
			model.CodeStentTrachea,
			model.CodeStentBronchus,
			model.CodeChartis,
			model.CodeThoracoPleurodesis,
		),
		AddOnCodes: set(
			model.CodeNavigation,
			model.CodeTBBxAddlLobe,
			model.CodeBLVRValve,
		),
		CodeFamilies: map[string]string{
			model.CodeEBUSLow:            "ebus-tbna",
			model.CodeEBUSHigh:           "ebus-tbna",
			model.CodeTransbronchialBx:   "lung-biopsy",
			model.CodeTBBxAddlLobe:       "lung-biopsy",
			model.CodeStentTrachea:       "airway-stent",
			model.CodeStentBronchus:      "airway-stent",
			model.CodeStentRevision:      "airway-stent",
			model.CodeThoracoscopy:       "thoracoscopy",
			model.CodeThoracoPleurodesis: "thoracoscopy",
		},
		ReviewOverrides: map[string]float64{},
	}
}

// LoadFromFile reads a YAML taxonomy file and replaces the receiver's tables
// with its values. Missing sections keep the receiver's current tables. The
// merged tables are validated before assignment; on any error the receiver is
// left untouched.
func (t *Taxonomy) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read taxonomy file: %w", err)
	}
	var yt yamlTaxonomy
	if err := yaml.Unmarshal(data, &yt); err != nil {
		return fmt.Errorf("parse taxonomy file: %w", err)
	}

	next := Taxonomy{
		HighValueCodes:  t.HighValueCodes,
		AddOnCodes:      t.AddOnCodes,
		CodeFamilies:    t.CodeFamilies,
		ReviewOverrides: t.ReviewOverrides,
	}
	if yt.HighValueCodes != nil {
		next.HighValueCodes = set(yt.HighValueCodes...)
	}
	if yt.AddOnCodes != nil {
		next.AddOnCodes = set(yt.AddOnCodes...)
	}
	if yt.CodeFamilies != nil {
		next.CodeFamilies = yt.CodeFamilies
	}
	if yt.ReviewOverrides != nil {
		next.ReviewOverrides = yt.ReviewOverrides
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*t = next
	return nil
}

// Validate rejects malformed tables. This is construction-time only: once a
// Taxonomy validates, every downstream call is infallible.
func (t *Taxonomy) Validate() error {
	for code := range t.HighValueCodes {
		if code == "" {
			return fmt.Errorf("empty code in high_value_codes")
		}
	}
	for code := range t.AddOnCodes {
		if code == "" {
			return fmt.Errorf("empty code in add_on_codes")
		}
	}
	for code, family := range t.CodeFamilies {
		if code == "" || family == "" {
			return fmt.Errorf("empty entry in code_families (%q → %q)", code, family)
		}
	}
	for code, threshold := range t.ReviewOverrides {
		if code == "" {
			return fmt.Errorf("empty code in review_overrides")
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("review override for %s out of range [0,1]: %v", code, threshold)
		}
	}
	return nil
}

// IsHighValue reports whether the code (bare or marked) is high value.
func (t *Taxonomy) IsHighValue(code string) bool {
	return t.HighValueCodes[model.BareCode(code)]
}

// IsAddOn reports whether the code (bare or marked) is an add-on.
func (t *Taxonomy) IsAddOn(code string) bool {
	return t.AddOnCodes[model.BareCode(code)]
}

// Family returns the family id for a code (bare or marked), or "" when the
// code belongs to no family.
func (t *Taxonomy) Family(code string) string {
	return t.CodeFamilies[model.BareCode(code)]
}

// SameFamily reports whether two codes belong to one non-empty family.
func (t *Taxonomy) SameFamily(a, b string) bool {
	fa := t.Family(a)
	return fa != "" && fa == t.Family(b)
}

func set(codes ...string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[model.BareCode(c)] = true
	}
	return m
}
