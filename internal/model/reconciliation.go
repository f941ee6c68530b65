package model

// DiscrepancyDirection says which pathway produced a non-matched code.
type DiscrepancyDirection string

const (
	DirectionExtractionOnly DiscrepancyDirection = "extraction_only"
	DirectionPredictionOnly DiscrepancyDirection = "prediction_only"
)

// DiscrepancySeverity grades how much scrutiny a non-matched code warrants.
type DiscrepancySeverity string

const (
	SeverityLow    DiscrepancySeverity = "low"
	SeverityMedium DiscrepancySeverity = "medium"
	SeverityHigh   DiscrepancySeverity = "high"
)

// DiscrepancyType classifies which sides of the comparison disagree.
type DiscrepancyType string

const (
	DiscrepancyNone           DiscrepancyType = "NONE"
	DiscrepancyExtractionOnly DiscrepancyType = "EXTRACTION_ONLY"
	DiscrepancyPredictionOnly DiscrepancyType = "PREDICTION_ONLY"
	DiscrepancyBoth           DiscrepancyType = "BOTH"
)

// Recommendation is the terminal label for an audit comparison.
type Recommendation string

const (
	RecommendAutoApprove  Recommendation = "auto_approve"
	RecommendReviewNeeded Recommendation = "review_needed"
	RecommendFlagForAudit Recommendation = "flag_for_audit"
)

// CodeDiscrepancy is one non-matched code with its direction and severity.
type CodeDiscrepancy struct {
	Code      string               `json:"code"`
	Direction DiscrepancyDirection `json:"direction"`
	Severity  DiscrepancySeverity  `json:"severity"`
}

// ReconciliationResult is the audit-surface comparison of two finished code
// sets. Code lists hold bare (marker-stripped) codes.
type ReconciliationResult struct {
	Matched         []string          `json:"matched"`
	ExtractionOnly  []string          `json:"extraction_only"`
	PredictionOnly  []string          `json:"prediction_only"`
	Discrepancies   []CodeDiscrepancy `json:"discrepancies"`
	DiscrepancyType DiscrepancyType   `json:"discrepancy_type"`
	Recommendation  Recommendation    `json:"recommendation"`
	ConfidenceScore float64           `json:"confidence_score"` // in [0,1]
	ReviewReasons   []string          `json:"review_reasons"`
}

// HasDiscrepancies reports whether any non-matched code exists.
func (r *ReconciliationResult) HasDiscrepancies() bool {
	return len(r.ExtractionOnly) > 0 || len(r.PredictionOnly) > 0
}

// TotalCodes is the size of the union of both code sets.
func (r *ReconciliationResult) TotalCodes() int {
	return len(r.Matched) + len(r.ExtractionOnly) + len(r.PredictionOnly)
}

// AgreementRate is |matched| / |union|, defined as 1.0 when the union is empty.
func (r *ReconciliationResult) AgreementRate() float64 {
	total := r.TotalCodes()
	if total == 0 {
		return 1.0
	}
	return float64(len(r.Matched)) / float64(total)
}
