package model

import (
	"time"

	"github.com/google/uuid"
)

// PathwayOutcome holds one pathway's contribution to a dual-pathway run.
// A failed pathway contributes an empty code set and a recorded error string;
// it never aborts the run.
type PathwayOutcome struct {
	Codes    []DerivedCode      `json:"codes"`
	Probs    map[string]float64 `json:"probabilities,omitempty"`
	Err      string             `json:"error,omitempty"`
	Duration time.Duration      `json:"duration_ns"`
}

// Failed reports whether this pathway recorded an error.
func (o *PathwayOutcome) Failed() bool { return o.Err != "" }

// ParallelPathwayResult is the fully-formed output of one orchestrator run.
// It is always returned, degrading to empty pathway outcomes on failure.
type ParallelPathwayResult struct {
	RunID         uuid.UUID        `json:"run_id"`
	PathwayA      PathwayOutcome   `json:"pathway_a"`
	PathwayB      PathwayOutcome   `json:"pathway_b"`
	Combined      []CodeConfidence `json:"combined"` // confidence descending
	CombineNotes  []string         `json:"combine_notes"`
	FinalCodes    []string         `json:"final_codes"` // filtered at acceptance threshold
	NeedsReview   bool             `json:"needs_review"`
	DurationTotal time.Duration    `json:"duration_total_ns"`
}
