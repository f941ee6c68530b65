package derive

import (
	"fmt"
	"strings"

	"github.com/gyeh/pulmcoder/internal/model"
)

func newCode(code, rationale string, confidence float64, evidence ...string) model.DerivedCode {
	return model.DerivedCode{
		Code:           code,
		Description:    model.Describe(code),
		Rationale:      rationale,
		Confidence:     confidence,
		EvidenceFields: evidence,
	}
}

// uniqueNonEmpty dedupes a site/station list preserving first-seen order.
func uniqueNonEmpty(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ebusRule selects between the 1-2 station and 3+ station EBUS codes by
// sampled station count. Performed-but-undocumented stations resolve to the
// low code at reduced confidence, not to an error.
type ebusRule struct{}

func (ebusRule) name() string { return "ebus" }

func (ebusRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	if !a.EBUS.Performed {
		return nil
	}
	stations := uniqueNonEmpty(a.EBUS.Stations)
	switch {
	case len(stations) >= 3:
		return []model.DerivedCode{newCode(model.CodeEBUSHigh,
			fmt.Sprintf("EBUS-TBNA of %d stations (%s)", len(stations), strings.Join(stations, ", ")),
			confidenceFull, "ebus.stations")}
	case len(stations) >= 1:
		return []model.DerivedCode{newCode(model.CodeEBUSLow,
			fmt.Sprintf("EBUS-TBNA of %d station(s) (%s)", len(stations), strings.Join(stations, ", ")),
			confidenceFull, "ebus.stations")}
	default:
		return []model.DerivedCode{newCode(model.CodeEBUSLow,
			"EBUS performed but no sampled stations documented; defaulting to 1-2 station code",
			confidenceReduced, "ebus.performed")}
	}
}

// lungBiopsyRule treats transbronchial biopsy and cryobiopsy as clinically
// equivalent triggers for one primary code, with one add-on instance per
// additional unique site beyond the first.
type lungBiopsyRule struct{}

func (lungBiopsyRule) name() string { return "lung-biopsy" }

func (lungBiopsyRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	if !a.Biopsy.Transbronchial && !a.Biopsy.Cryobiopsy {
		return nil
	}
	var techniques []string
	if a.Biopsy.Transbronchial {
		techniques = append(techniques, "transbronchial forceps biopsy")
	}
	if a.Biopsy.Cryobiopsy {
		techniques = append(techniques, "transbronchial cryobiopsy")
	}
	sites := uniqueNonEmpty(a.Biopsy.Sites)

	rationale := strings.Join(techniques, " and ")
	if len(sites) > 0 {
		rationale += fmt.Sprintf(" of %s", sites[0])
	}
	out := []model.DerivedCode{newCode(model.CodeTransbronchialBx, rationale,
		confidenceFull, "biopsy.transbronchial", "biopsy.cryobiopsy", "biopsy.sites")}

	for _, site := range sites[min(1, len(sites)):] {
		out = append(out, newCode(model.CodeTBBxAddlLobe,
			fmt.Sprintf("additional lobe biopsied: %s", site),
			confidenceFull, "biopsy.sites"))
	}
	return out
}

// endobronchialBiopsyRule is a distinct, separately coded biopsy category.
type endobronchialBiopsyRule struct{}

func (endobronchialBiopsyRule) name() string { return "endobronchial-biopsy" }

func (endobronchialBiopsyRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	if !a.Biopsy.Endobronchial {
		return nil
	}
	rationale := "endobronchial biopsy"
	if sites := uniqueNonEmpty(a.Biopsy.EndobronchialSites); len(sites) > 0 {
		rationale += fmt.Sprintf(" of %s", strings.Join(sites, ", "))
	}
	return []model.DerivedCode{newCode(model.CodeEndobronchialBx, rationale,
		confidenceFull, "biopsy.endobronchial", "biopsy.endobronchial_sites")}
}

// lavageRule emits the presence-only BAL and brushings codes. No quantity
// scaling: multiple sites still yield exactly one code each.
type lavageRule struct{}

func (lavageRule) name() string { return "lavage" }

func (lavageRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	var out []model.DerivedCode
	sites := uniqueNonEmpty(a.Lavage.Sites)
	suffix := ""
	if len(sites) > 0 {
		suffix = fmt.Sprintf(" (%s)", strings.Join(sites, ", "))
	}
	if a.Lavage.BALPerformed {
		out = append(out, newCode(model.CodeBAL,
			"bronchoalveolar lavage performed"+suffix,
			confidenceFull, "lavage.bal_performed", "lavage.sites"))
	}
	if a.Lavage.BrushingPerformed {
		out = append(out, newCode(model.CodeBrushings,
			"bronchial brushings obtained"+suffix,
			confidenceFull, "lavage.brushing_performed", "lavage.sites"))
	}
	return out
}

// pleuralRule covers thoracentesis, IPC by action, chest tube, and
// thoracoscopy with or without pleurodesis.
type pleuralRule struct{}

func (pleuralRule) name() string { return "pleural" }

func (pleuralRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	var out []model.DerivedCode
	p := a.Pleural

	if p.Thoracentesis {
		out = append(out, newCode(model.CodeThoracentesis,
			"thoracentesis performed; image guidance assumed per standard of care",
			confidenceFull, "pleural.thoracentesis"))
	}
	if p.IPC {
		switch p.IPCAction {
		case model.IPCRemoval:
			out = append(out, newCode(model.CodeIPCRemoval,
				"indwelling pleural catheter removed",
				confidenceFull, "pleural.ipc", "pleural.ipc_action"))
		case model.IPCInsertion:
			out = append(out, newCode(model.CodeIPCInsertion,
				"indwelling tunneled pleural catheter inserted",
				confidenceFull, "pleural.ipc", "pleural.ipc_action"))
		default:
			out = append(out, newCode(model.CodeIPCInsertion,
				"indwelling pleural catheter documented without insertion/removal action; defaulting to insertion",
				confidenceReduced, "pleural.ipc"))
		}
	}
	if p.ChestTube {
		out = append(out, newCode(model.CodeChestTube,
			"tube thoracostomy performed",
			confidenceFull, "pleural.chest_tube"))
	}
	if p.Thoracoscopy {
		if p.Pleurodesis {
			out = append(out, newCode(model.CodeThoracoPleurodesis,
				"medical thoracoscopy with pleurodesis",
				confidenceFull, "pleural.thoracoscopy", "pleural.pleurodesis"))
		} else {
			out = append(out, newCode(model.CodeThoracoscopy,
				"diagnostic medical thoracoscopy",
				confidenceFull, "pleural.thoracoscopy"))
		}
	}
	return out
}

// caoRule treats thermal ablation and cryotherapy as equivalence-class
// variants of one tumor-destruction code; co-use of both modalities still
// yields exactly one instance. Dilation is independent and may co-occur.
type caoRule struct{}

func (caoRule) name() string { return "cao" }

func (caoRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	var out []model.DerivedCode
	if a.CAO.ThermalAblation || a.CAO.Cryotherapy {
		var modalities []string
		if a.CAO.ThermalAblation {
			modalities = append(modalities, "thermal ablation")
		}
		if a.CAO.Cryotherapy {
			modalities = append(modalities, "cryotherapy")
		}
		out = append(out, newCode(model.CodeTumorDestruction,
			fmt.Sprintf("airway tumor destruction via %s", strings.Join(modalities, " and ")),
			confidenceFull, "cao.thermal_ablation", "cao.cryotherapy"))
	}
	if a.CAO.Dilation {
		out = append(out, newCode(model.CodeAirwayDilation,
			"airway dilation performed",
			confidenceFull, "cao.dilation"))
	}
	return out
}

// stentRule is a 2x2 decision table on {trachea, bronchus} x {insertion,
// removal}. Removal resolves to the revision/removal code at either location.
type stentRule struct{}

func (stentRule) name() string { return "stent" }

func (stentRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	if !a.Stent.Performed {
		return nil
	}
	s := a.Stent
	if s.Action == model.StentRemoval {
		loc := string(s.Location)
		if loc == "" {
			loc = "airway"
		}
		return []model.DerivedCode{newCode(model.CodeStentRevision,
			fmt.Sprintf("removal of %s stent", loc),
			confidenceFull, "stent.action", "stent.location")}
	}
	switch s.Location {
	case model.StentTrachea:
		return []model.DerivedCode{newCode(model.CodeStentTrachea,
			"tracheal stent placed",
			confidenceFull, "stent.action", "stent.location")}
	case model.StentBronchus:
		return []model.DerivedCode{newCode(model.CodeStentBronchus,
			"bronchial stent placed",
			confidenceFull, "stent.action", "stent.location")}
	default:
		return []model.DerivedCode{newCode(model.CodeStentBronchus,
			"stent placed but anatomic location not documented; defaulting to bronchial code",
			confidenceReduced, "stent.action")}
	}
}

// blvrRule emits the Chartis assessment code and one valve add-on instance
// per placed valve (instance count == valve_count, not deduplicated).
type blvrRule struct{}

func (blvrRule) name() string { return "blvr" }

func (blvrRule) evaluate(a model.ClinicalActions, _ []model.DerivedCode) []model.DerivedCode {
	var out []model.DerivedCode
	lobe := strings.TrimSpace(a.BLVR.TargetLobe)
	if a.BLVR.ChartisPerformed {
		rationale := "Chartis collateral ventilation assessment"
		if lobe != "" {
			rationale += fmt.Sprintf(" of %s", lobe)
		}
		out = append(out, newCode(model.CodeChartis, rationale,
			confidenceFull, "blvr.chartis_performed", "blvr.target_lobe"))
	}
	for i := 0; i < a.BLVR.ValveCount; i++ {
		rationale := fmt.Sprintf("endobronchial valve %d of %d placed", i+1, a.BLVR.ValveCount)
		if lobe != "" {
			rationale += fmt.Sprintf(" in %s", lobe)
		}
		out = append(out, newCode(model.CodeBLVRValve, rationale,
			confidenceFull, "blvr.valve_count", "blvr.target_lobe"))
	}
	return out
}

// navigationRule emits the navigation add-on only when a qualifying primary
// (EBUS or a biopsy code) is already present in the same result. Navigation
// alone yields nothing.
type navigationRule struct{}

func (navigationRule) name() string { return "navigation" }

var navigationPrimaries = map[string]bool{
	model.CodeEBUSLow:          true,
	model.CodeEBUSHigh:         true,
	model.CodeTransbronchialBx: true,
	model.CodeEndobronchialBx:  true,
}

func (navigationRule) evaluate(a model.ClinicalActions, sofar []model.DerivedCode) []model.DerivedCode {
	if !a.Navigation.Performed {
		return nil
	}
	qualified := false
	for _, c := range sofar {
		if navigationPrimaries[model.BareCode(c.Code)] {
			qualified = true
			break
		}
	}
	if !qualified {
		return nil
	}
	rationale := "image-guided navigation used with qualifying primary procedure"
	if platform := strings.TrimSpace(a.Navigation.Platform); platform != "" {
		rationale = fmt.Sprintf("image-guided navigation (%s) used with qualifying primary procedure", platform)
	}
	return []model.DerivedCode{newCode(model.CodeNavigation, rationale,
		confidenceFull, "navigation.performed", "navigation.platform")}
}

// diagnosticFallbackRule emits the bare diagnostic bronchoscopy code only
// when no other rule produced a code in this pass.
type diagnosticFallbackRule struct{}

func (diagnosticFallbackRule) name() string { return "diagnostic-fallback" }

func (diagnosticFallbackRule) evaluate(a model.ClinicalActions, sofar []model.DerivedCode) []model.DerivedCode {
	if !a.DiagnosticBronchoscopy || len(sofar) > 0 {
		return nil
	}
	return []model.DerivedCode{newCode(model.CodeDiagnosticBronch,
		"diagnostic bronchoscopy without additional coded interventions",
		confidenceFull, "diagnostic_bronchoscopy")}
}
