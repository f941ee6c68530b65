// Package derive implements the deterministic rules engine that maps a
// ClinicalActions snapshot to CPT codes, with an observable bundling pass.
// Absence of evidence always resolves to "no code for that category", never
// an error: the only fallible call is construction.
package derive

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gyeh/pulmcoder/internal/model"
	"github.com/gyeh/pulmcoder/internal/taxonomy"
)

// Confidence assigned to codes backed by complete documentation, and to codes
// emitted despite a documentation gap noted in the rationale.
const (
	confidenceFull    = 0.95
	confidenceReduced = 0.60
)

// rule is one procedure-category evaluator. Rules are independent reads of the
// same snapshot; sofar carries the codes emitted by earlier rules for the few
// rules that are co-occurrence gated (navigation, fallback).
type rule interface {
	name() string
	evaluate(a model.ClinicalActions, sofar []model.DerivedCode) []model.DerivedCode
}

// Engine derives CPT codes from clinical actions. Safe for concurrent use;
// it holds only immutable configuration.
type Engine struct {
	tax   *taxonomy.Taxonomy
	rules []rule
	log   zerolog.Logger
}

// New builds an Engine with the default category rules. The taxonomy is
// validated here so every later DeriveCodes call is infallible.
func New(tax *taxonomy.Taxonomy, log zerolog.Logger) (*Engine, error) {
	if tax == nil {
		return nil, fmt.Errorf("taxonomy is required")
	}
	if err := tax.Validate(); err != nil {
		return nil, fmt.Errorf("invalid taxonomy: %w", err)
	}
	return &Engine{
		tax: tax,
		rules: []rule{
			ebusRule{},
			lungBiopsyRule{},
			endobronchialBiopsyRule{},
			lavageRule{},
			pleuralRule{},
			caoRule{},
			stentRule{},
			blvrRule{},
			navigationRule{},
			diagnosticFallbackRule{},
		},
		log: log,
	}, nil
}

// DeriveCodes evaluates every category rule against the snapshot and, when
// applyBundling is set, runs the bundling pass. The result is created fresh
// per call; the input is never mutated.
func (e *Engine) DeriveCodes(a model.ClinicalActions, applyBundling bool) *model.DerivationResult {
	res := &model.DerivationResult{
		Codes:           []model.DerivedCode{},
		BundledCodes:    []string{},
		BundlingReasons: []string{},
	}

	for _, r := range e.rules {
		emitted := r.evaluate(a, res.Codes)
		for _, c := range emitted {
			res.Codes = append(res.Codes, e.mark(c))
		}
	}

	if applyBundling {
		e.bundle(res)
	}

	e.log.Debug().
		Int("codes", len(res.Codes)).
		Int("bundled", len(res.BundledCodes)).
		Bool("bundling_applied", applyBundling).
		Msg("derivation complete")

	return res
}

// mark prefixes the add-on marker on codes the taxonomy classifies as
// add-ons, so rule implementations stay notation-agnostic.
func (e *Engine) mark(c model.DerivedCode) model.DerivedCode {
	if e.tax.IsAddOn(c.Code) && !c.IsAddOn() {
		c.Code = model.MarkAddOn(c.Code)
	}
	return c
}
