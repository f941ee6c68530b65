// Package confidence fuses the deterministic and probabilistic signals for a
// single code into one calibrated confidence with an explanation. Everything
// here is pure and deterministic: no hidden state, no randomness.
package confidence

import (
	"fmt"
	"sort"

	"github.com/gyeh/pulmcoder/internal/model"
)

// Weights of the deterministic, ML, and entity-extraction signals when the
// rules engine found the code.
const (
	weightDeterministic = 0.6
	weightML            = 0.3
	weightEntity        = 0.1

	agreementBonus      = 0.10
	agreementCap        = 0.99
	disagreementPenalty = 0.15
	disagreementFloor   = 0.50

	// ML-only tiers: confidence is the ML probability penalized for missing
	// deterministic corroboration.
	mlOnlyHighFactor = 0.7
	mlOnlyMidFactor  = 0.5
	mlOnlyLowFactor  = 0.3
	mlOnlyFloor      = 0.10

	// DefaultEntityConfidence is used when the extraction collaborator
	// supplied no per-code entity confidence.
	DefaultEntityConfidence = 0.5

	// Generic review trigger for found-but-ML-disagrees codes; per-code
	// overrides may tighten it.
	disagreementReviewBelow = 0.3
)

// Combiner fuses per-code signals. ReviewOverrides maps code → a stricter
// ML-probability threshold below which a deterministically-found code is
// flagged for review even when the generic rule would let it pass.
type Combiner struct {
	overrides map[string]float64
}

// NewCombiner validates the override table at construction; out-of-range
// thresholds are configuration errors and the only failure this package has.
func NewCombiner(reviewOverrides map[string]float64) (*Combiner, error) {
	cleaned := make(map[string]float64, len(reviewOverrides))
	for code, threshold := range reviewOverrides {
		if code == "" {
			return nil, fmt.Errorf("empty code in review overrides")
		}
		if threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("review override for %s out of range [0,1]: %v", code, threshold)
		}
		cleaned[model.BareCode(code)] = threshold
	}
	return &Combiner{overrides: cleaned}, nil
}

// Combine fuses the signals for one code. deterministicFound says whether the
// rules engine emitted the code; mlProbability is the independent pathway's
// probability; entityConfidence is the extraction collaborator's confidence
// in the underlying entities (use DefaultEntityConfidence when unknown).
func (c *Combiner) Combine(code string, deterministicFound bool, mlProbability, entityConfidence float64) model.CodeConfidence {
	code = model.BareCode(code)
	out := model.CodeConfidence{Code: code}

	if deterministicFound {
		blend := weightDeterministic + weightML*mlProbability + weightEntity*entityConfidence
		if mlProbability >= 0.5 {
			out.Confidence = min(blend+agreementBonus, agreementCap)
			out.Explanation = fmt.Sprintf(
				"rules engine and ML agree (ml=%.2f); blended confidence with agreement bonus", mlProbability)
		} else {
			out.Confidence = max(blend-disagreementPenalty, disagreementFloor)
			out.Explanation = fmt.Sprintf(
				"rules engine found code but ML disagrees (ml=%.2f); blended confidence with disagreement penalty", mlProbability)
			reviewBelow := disagreementReviewBelow
			if override, ok := c.overrides[code]; ok && override > reviewBelow {
				reviewBelow = override
			}
			if mlProbability < reviewBelow {
				out.NeedsReview = true
				out.ReviewReason = fmt.Sprintf("ML probability %.2f below review threshold %.2f", mlProbability, reviewBelow)
			}
		}
		return out
	}

	switch {
	case mlProbability >= 0.8:
		out.Confidence = mlProbability * mlOnlyHighFactor
		out.Explanation = fmt.Sprintf(
			"ML-only code with high probability %.2f; penalized for missing rules-engine corroboration", mlProbability)
		out.NeedsReview = true
		out.ReviewReason = "high-probability ML code not found by rules engine"
	case mlProbability >= 0.5:
		out.Confidence = mlProbability * mlOnlyMidFactor
		out.Explanation = fmt.Sprintf(
			"ML-only code with moderate probability %.2f; penalized for missing rules-engine corroboration", mlProbability)
		out.NeedsReview = true
		out.ReviewReason = "moderate-probability ML code not found by rules engine"
	default:
		out.Confidence = max(mlProbability*mlOnlyLowFactor, mlOnlyFloor)
		out.Explanation = fmt.Sprintf(
			"ML-only code with low probability %.2f; heavily discounted", mlProbability)
		if mlProbability > 0.3 {
			out.NeedsReview = true
			out.ReviewReason = "borderline ML-only code"
		}
	}
	return out
}

// CombineAll fuses every unique code seen by either pathway and returns the
// results ranked by confidence descending (ties broken by code ascending so
// ordering is reproducible), plus "<code>: <reason>" strings for each code
// flagged for review.
func (c *Combiner) CombineAll(pathACodes []string, pathBProbs map[string]float64, entityConfs map[string]float64) ([]model.CodeConfidence, []string) {
	found := make(map[string]bool, len(pathACodes))
	for _, code := range pathACodes {
		found[model.BareCode(code)] = true
	}

	union := make(map[string]bool, len(found)+len(pathBProbs))
	for code := range found {
		union[code] = true
	}
	for code := range pathBProbs {
		union[model.BareCode(code)] = true
	}

	probs := make(map[string]float64, len(pathBProbs))
	for code, p := range pathBProbs {
		probs[model.BareCode(code)] = p
	}
	entities := make(map[string]float64, len(entityConfs))
	for code, p := range entityConfs {
		entities[model.BareCode(code)] = p
	}

	results := make([]model.CodeConfidence, 0, len(union))
	for code := range union {
		entity := DefaultEntityConfidence
		if e, ok := entities[code]; ok {
			entity = e
		}
		results = append(results, c.Combine(code, found[code], probs[code], entity))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Code < results[j].Code
	})

	var reasons []string
	for _, r := range results {
		if r.NeedsReview {
			reasons = append(reasons, fmt.Sprintf("%s: %s", r.Code, r.ReviewReason))
		}
	}
	return results, reasons
}
