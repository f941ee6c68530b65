package model

import "strings"

// CPT codes emitted by the derivation engine. Add-on codes carry a leading
// "+" marker in their emitted form; the bare constant is the payer-facing code.
const (
	// Bronchoscopy
	CodeDiagnosticBronch = "31622" // diagnostic bronchoscopy, with or without lavage of a single segment
	CodeBrushings        = "31623" // bronchoscopy with brushings
	CodeBAL              = "31624" // bronchoscopy with bronchoalveolar lavage
	CodeEndobronchialBx  = "31625" // bronchoscopy with endobronchial biopsy
	CodeTransbronchialBx = "31628" // transbronchial lung biopsy, single lobe
	CodeTBBxAddlLobe     = "31632" // add-on: transbronchial biopsy, each additional lobe
	CodeNavigation       = "31627" // add-on: computer-assisted image-guided navigation

	// EBUS
	CodeEBUSLow  = "31652" // EBUS-guided sampling, 1 or 2 mediastinal/hilar stations
	CodeEBUSHigh = "31653" // EBUS-guided sampling, 3 or more stations

	// Central airway obstruction
	CodeTumorDestruction = "31641" // bronchoscopy with destruction of tumor or relief of stenosis
	CodeAirwayDilation   = "31630" // bronchoscopy with tracheal/bronchial dilation

	// Stents
	CodeStentTrachea  = "31631" // bronchoscopy with tracheal stent placement
	CodeStentBronchus = "31636" // bronchoscopy with bronchial stent placement
	CodeStentRevision = "31638" // bronchoscopy with revision or removal of stent

	// BLVR
	CodeChartis   = "31634" // balloon occlusion with assessment of air leak/collateral ventilation
	CodeBLVRValve = "31651" // add-on: bronchial valve placement, each additional lobe

	// Pleural
	CodeThoracentesis      = "32555" // thoracentesis with imaging guidance
	CodeIPCInsertion       = "32550" // insertion of indwelling tunneled pleural catheter
	CodeIPCRemoval         = "32552" // removal of indwelling tunneled pleural catheter
	CodeChestTube          = "32551" // tube thoracostomy
	CodeThoracoscopy       = "32601" // diagnostic thoracoscopy
	CodeThoracoPleurodesis = "32650" // thoracoscopy with pleurodesis
)

// CodeDescriptions is the canonical code → short descriptor table.
var CodeDescriptions = map[string]string{
	CodeDiagnosticBronch:   "Diagnostic bronchoscopy",
	CodeBrushings:          "Bronchoscopy with brushings",
	CodeBAL:                "Bronchoscopy with bronchoalveolar lavage",
	CodeEndobronchialBx:    "Bronchoscopy with endobronchial biopsy",
	CodeTransbronchialBx:   "Transbronchial lung biopsy, single lobe",
	CodeTBBxAddlLobe:       "Transbronchial lung biopsy, each additional lobe",
	CodeNavigation:         "Computer-assisted image-guided navigation",
	CodeEBUSLow:            "EBUS-guided sampling, 1-2 stations",
	CodeEBUSHigh:           "EBUS-guided sampling, 3+ stations",
	CodeTumorDestruction:   "Bronchoscopy with tumor destruction",
	CodeAirwayDilation:     "Bronchoscopy with airway dilation",
	CodeStentTrachea:       "Tracheal stent placement",
	CodeStentBronchus:      "Bronchial stent placement",
	CodeStentRevision:      "Revision or removal of airway stent",
	CodeChartis:            "Balloon occlusion with collateral ventilation assessment",
	CodeBLVRValve:          "Bronchial valve placement",
	CodeThoracentesis:      "Thoracentesis with imaging guidance",
	CodeIPCInsertion:       "Insertion of indwelling tunneled pleural catheter",
	CodeIPCRemoval:         "Removal of indwelling tunneled pleural catheter",
	CodeChestTube:          "Tube thoracostomy",
	CodeThoracoscopy:       "Diagnostic thoracoscopy",
	CodeThoracoPleurodesis: "Thoracoscopy with pleurodesis",
}

// AddOnMarker prefixes add-on codes in their emitted form, e.g. "+31627".
const AddOnMarker = "+"

// MarkAddOn returns the emitted form of an add-on code.
func MarkAddOn(code string) string {
	return AddOnMarker + code
}

// BareCode strips a leading add-on marker, if any. Notation must never itself
// cause a discrepancy, so both pathways compare on the bare form.
func BareCode(code string) string {
	return strings.TrimPrefix(strings.TrimSpace(code), AddOnMarker)
}

// Describe returns the canonical descriptor for a code (bare or marked),
// or the code itself when unknown.
func Describe(code string) string {
	if d, ok := CodeDescriptions[BareCode(code)]; ok {
		return d
	}
	return code
}
