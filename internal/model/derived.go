package model

// DerivedCode is one CPT code produced by the deterministic rules engine,
// together with the justification a human reviewer needs to act on it.
// Rationale is never empty.
type DerivedCode struct {
	Code           string   `json:"code"` // add-on codes carry a leading "+"
	Description    string   `json:"description"`
	Rationale      string   `json:"rationale"`
	Confidence     float64  `json:"confidence"` // in [0,1]
	EvidenceFields []string `json:"evidence_fields"`
}

// IsAddOn reports whether the code carries the add-on marker.
func (d DerivedCode) IsAddOn() bool {
	return len(d.Code) > 0 && d.Code[0:1] == AddOnMarker
}

// DerivationResult is the output of one derivation pass. Bundled codes are
// recorded with matching reasons, never silently discarded.
type DerivationResult struct {
	Codes           []DerivedCode `json:"codes"`
	BundledCodes    []string      `json:"bundled_codes"`
	BundlingReasons []string      `json:"bundling_reasons"`
}

// CodeStrings returns the emitted code strings in order.
func (r *DerivationResult) CodeStrings() []string {
	out := make([]string, len(r.Codes))
	for i, c := range r.Codes {
		out[i] = c.Code
	}
	return out
}

// Contains reports whether the result holds the given code, compared bare.
func (r *DerivationResult) Contains(code string) bool {
	want := BareCode(code)
	for _, c := range r.Codes {
		if BareCode(c.Code) == want {
			return true
		}
	}
	return false
}
