package model

// CodeConfidence is the fused confidence for one code seen by either pathway.
type CodeConfidence struct {
	Code         string  `json:"code"`
	Confidence   float64 `json:"confidence"` // in [0,1]
	Explanation  string  `json:"explanation"`
	NeedsReview  bool    `json:"needs_review"`
	ReviewReason string  `json:"review_reason,omitempty"`
}
