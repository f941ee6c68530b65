// Package reconcile compares two finished code sets produced by independent
// pipelines and classifies the comparison into one of three recommendation
// states. This is the audit surface; the interactive suggestion surface is
// internal/confidence. The two encode overlapping but non-identical policy
// and are deliberately kept separate.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/gyeh/pulmcoder/internal/model"
	"github.com/gyeh/pulmcoder/internal/taxonomy"
)

// Options tunes the reconciler. Zero-value fields take the documented defaults
// through DefaultOptions.
type Options struct {
	// PredictionConfidenceThreshold drops predicted codes below it before
	// comparison, so low-confidence ML noise never becomes a discrepancy.
	PredictionConfidenceThreshold float64
	// FlagHighValue escalates unexplained high-value discrepancies to audit.
	FlagHighValue bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PredictionConfidenceThreshold: 0.5,
		FlagHighValue:                 true,
	}
}

// Thresholds internal to the recommendation policy.
const (
	// auditPredictionConfidence: a prediction-only code at or above this
	// confidence is too certain to leave to routine review.
	auditPredictionConfidence = 0.9
	// volumeReviewCount: this many discrepant codes escalates on volume
	// alone, regardless of individual severities.
	volumeReviewCount = 3
	// missPenaltyFactor scales the per-miss confidence-score penalty.
	missPenaltyFactor = 0.1
	// defaultPredictionConfidence is assumed when the ML collaborator gave a
	// code without a probability.
	defaultPredictionConfidence = 0.5
)

// Reconciler compares derived and predicted code sets. Immutable after
// construction; safe for concurrent use.
type Reconciler struct {
	tax  *taxonomy.Taxonomy
	opts Options
	log  zerolog.Logger
}

// New validates the taxonomy and options at construction, the only point
// where this package may fail.
func New(tax *taxonomy.Taxonomy, opts Options, log zerolog.Logger) (*Reconciler, error) {
	if tax == nil {
		return nil, fmt.Errorf("taxonomy is required")
	}
	if err := tax.Validate(); err != nil {
		return nil, fmt.Errorf("invalid taxonomy: %w", err)
	}
	if opts.PredictionConfidenceThreshold < 0 || opts.PredictionConfidenceThreshold > 1 {
		return nil, fmt.Errorf("prediction confidence threshold out of range [0,1]: %v",
			opts.PredictionConfidenceThreshold)
	}
	return &Reconciler{tax: tax, opts: opts, log: log}, nil
}

// Reconcile compares the rules-engine code set against the ML-predicted code
// set. predictionConfidences may be nil; codes missing from it are assumed at
// defaultPredictionConfidence. The result is created fresh per call.
func (r *Reconciler) Reconcile(derivedCodes, predictedCodes []string, predictionConfidences map[string]float64) *model.ReconciliationResult {
	derived := normalizeSet(derivedCodes)

	confs := make(map[string]float64, len(predictionConfidences))
	for code, conf := range predictionConfidences {
		confs[model.BareCode(code)] = conf
	}

	// Filter low-confidence ML noise before comparison.
	predicted := make(map[string]bool)
	for code := range normalizeSet(predictedCodes) {
		if r.predictionConfidence(confs, code) >= r.opts.PredictionConfidenceThreshold {
			predicted[code] = true
		}
	}

	res := &model.ReconciliationResult{
		Matched:        []string{},
		ExtractionOnly: []string{},
		PredictionOnly: []string{},
		Discrepancies:  []model.CodeDiscrepancy{},
		ReviewReasons:  []string{},
	}

	for code := range derived {
		if predicted[code] {
			res.Matched = append(res.Matched, code)
		} else {
			res.ExtractionOnly = append(res.ExtractionOnly, code)
		}
	}
	for code := range predicted {
		if !derived[code] {
			res.PredictionOnly = append(res.PredictionOnly, code)
		}
	}
	sort.Strings(res.Matched)
	sort.Strings(res.ExtractionOnly)
	sort.Strings(res.PredictionOnly)

	res.DiscrepancyType = discrepancyType(len(res.ExtractionOnly), len(res.PredictionOnly))

	for _, code := range res.ExtractionOnly {
		res.Discrepancies = append(res.Discrepancies, model.CodeDiscrepancy{
			Code:      code,
			Direction: model.DirectionExtractionOnly,
			Severity:  r.severity(code, model.DirectionExtractionOnly, predicted, confs),
		})
	}
	for _, code := range res.PredictionOnly {
		res.Discrepancies = append(res.Discrepancies, model.CodeDiscrepancy{
			Code:      code,
			Direction: model.DirectionPredictionOnly,
			Severity:  r.severity(code, model.DirectionPredictionOnly, derived, confs),
		})
	}
	sort.Slice(res.Discrepancies, func(i, j int) bool {
		return res.Discrepancies[i].Code < res.Discrepancies[j].Code
	})

	r.recommend(res, derived, predicted, confs)
	res.ConfidenceScore = r.score(res, confs)

	r.log.Debug().
		Int("matched", len(res.Matched)).
		Int("extraction_only", len(res.ExtractionOnly)).
		Int("prediction_only", len(res.PredictionOnly)).
		Str("recommendation", string(res.Recommendation)).
		Float64("confidence_score", res.ConfidenceScore).
		Msg("reconciliation complete")

	return res
}

func (r *Reconciler) predictionConfidence(confs map[string]float64, code string) float64 {
	if conf, ok := confs[code]; ok {
		return conf
	}
	return defaultPredictionConfidence
}

// severity grades one discrepant code. Family variants of a code in the
// opposite set and add-on codes are low; high-value codes and very confident
// prediction-only misses are high; everything else is medium.
func (r *Reconciler) severity(code string, direction model.DiscrepancyDirection, opposite map[string]bool, confs map[string]float64) model.DiscrepancySeverity {
	if r.familyExplained(code, opposite) {
		return model.SeverityLow
	}
	if r.tax.IsAddOn(code) {
		return model.SeverityLow
	}
	if r.tax.IsHighValue(code) {
		return model.SeverityHigh
	}
	if direction == model.DirectionPredictionOnly &&
		r.predictionConfidence(confs, code) >= auditPredictionConfidence {
		return model.SeverityHigh
	}
	return model.SeverityMedium
}

// familyExplained reports whether a code in the opposite set shares a family
// with the discrepant code, i.e. the two pathways saw the same clinical event
// and differed only on the variant.
func (r *Reconciler) familyExplained(code string, opposite map[string]bool) bool {
	for other := range opposite {
		if r.tax.SameFamily(code, other) {
			return true
		}
	}
	return false
}

// recommend applies the decision rules in order; the first applicable wins.
func (r *Reconciler) recommend(res *model.ReconciliationResult, derived, predicted map[string]bool, confs map[string]float64) {
	if !res.HasDiscrepancies() {
		res.Recommendation = model.RecommendAutoApprove
		return
	}

	if r.opts.FlagHighValue {
		for _, d := range res.Discrepancies {
			opposite := predicted
			if d.Direction == model.DirectionPredictionOnly {
				opposite = derived
			}
			if r.tax.IsHighValue(d.Code) && !r.familyExplained(d.Code, opposite) {
				res.Recommendation = model.RecommendFlagForAudit
				res.ReviewReasons = append(res.ReviewReasons,
					fmt.Sprintf("high-value code %s present in only one pathway", d.Code))
				return
			}
		}
	}

	for _, code := range res.PredictionOnly {
		if r.familyExplained(code, derived) {
			continue
		}
		if conf := r.predictionConfidence(confs, code); conf >= auditPredictionConfidence {
			res.Recommendation = model.RecommendFlagForAudit
			res.ReviewReasons = append(res.ReviewReasons,
				fmt.Sprintf("prediction-only code %s with confidence %.2f absent from rules engine output", code, conf))
			return
		}
	}

	discrepant := len(res.ExtractionOnly) + len(res.PredictionOnly)
	if discrepant >= volumeReviewCount {
		res.Recommendation = model.RecommendReviewNeeded
		res.ReviewReasons = append(res.ReviewReasons,
			fmt.Sprintf("%d discrepant codes between pathways", discrepant))
		return
	}

	res.Recommendation = model.RecommendReviewNeeded
	for _, d := range res.Discrepancies {
		res.ReviewReasons = append(res.ReviewReasons,
			fmt.Sprintf("%s found by %s pathway only (severity %s)", d.Code, directionLabel(d.Direction), d.Severity))
	}
}

// score is the agreement rate penalized in proportion to the confidence of
// each prediction-only miss, clamped to [0,1]. A miss at 0.95 costs more than
// one at 0.55.
func (r *Reconciler) score(res *model.ReconciliationResult, confs map[string]float64) float64 {
	if !res.HasDiscrepancies() {
		return 1.0
	}
	score := res.AgreementRate()
	for _, code := range res.PredictionOnly {
		score -= missPenaltyFactor * r.predictionConfidence(confs, code)
	}
	return min(max(score, 0), 1)
}

func normalizeSet(codes []string) map[string]bool {
	out := make(map[string]bool, len(codes))
	for _, c := range codes {
		if bare := model.BareCode(c); bare != "" {
			out[bare] = true
		}
	}
	return out
}

func discrepancyType(extractionOnly, predictionOnly int) model.DiscrepancyType {
	switch {
	case extractionOnly == 0 && predictionOnly == 0:
		return model.DiscrepancyNone
	case predictionOnly == 0:
		return model.DiscrepancyExtractionOnly
	case extractionOnly == 0:
		return model.DiscrepancyPredictionOnly
	default:
		return model.DiscrepancyBoth
	}
}

func directionLabel(d model.DiscrepancyDirection) string {
	if d == model.DirectionExtractionOnly {
		return "extraction"
	}
	return "prediction"
}
