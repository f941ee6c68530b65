package derive

import (
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gyeh/pulmcoder/internal/model"
	"github.com/gyeh/pulmcoder/internal/taxonomy"
)

// newEngine builds an engine on the default taxonomy, failing the test on
// construction errors.
func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(taxonomy.Default(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// codes returns the bare code strings of a result for easy comparison.
func codes(res *model.DerivationResult) []string {
	out := make([]string, len(res.Codes))
	for i, c := range res.Codes {
		out[i] = model.BareCode(c.Code)
	}
	return out
}

func hasCode(res *model.DerivationResult, code string) bool {
	return res.Contains(code)
}

func findCode(t *testing.T, res *model.DerivationResult, code string) model.DerivedCode {
	t.Helper()
	for _, c := range res.Codes {
		if model.BareCode(c.Code) == model.BareCode(code) {
			return c
		}
	}
	t.Fatalf("code %s not in result %v", code, codes(res))
	return model.DerivedCode{}
}

func TestDeriveCodes_EmptyActions(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{}, true)
	if len(res.Codes) != 0 {
		t.Errorf("expected zero codes for empty actions, got %v", codes(res))
	}
	if len(res.BundledCodes) != 0 {
		t.Errorf("expected no bundled codes, got %v", res.BundledCodes)
	}
}

func TestDeriveCodes_DiagnosticOnly(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{DiagnosticBronchoscopy: true}, true)
	if len(res.Codes) != 1 {
		t.Fatalf("expected exactly one code, got %v", codes(res))
	}
	if res.Codes[0].Code != model.CodeDiagnosticBronch {
		t.Errorf("expected %s, got %s", model.CodeDiagnosticBronch, res.Codes[0].Code)
	}
}

func TestDeriveCodes_FallbackSuppressedByAnyOtherCode(t *testing.T) {
	e := newEngine(t)
	a := model.ClinicalActions{
		DiagnosticBronchoscopy: true,
		Lavage:                 model.LavageActions{BALPerformed: true},
	}
	res := e.DeriveCodes(a, true)
	if hasCode(res, model.CodeDiagnosticBronch) {
		t.Errorf("fallback code should be suppressed, got %v", codes(res))
	}
	if !hasCode(res, model.CodeBAL) {
		t.Errorf("expected BAL code, got %v", codes(res))
	}
}

func TestDeriveCodes_Idempotent(t *testing.T) {
	e := newEngine(t)
	a := model.ClinicalActions{
		EBUS:       model.EBUSActions{Performed: true, Stations: []string{"4R", "7", "11L"}},
		Navigation: model.NavigationActions{Performed: true, Platform: "Ion"},
		Lavage:     model.LavageActions{BALPerformed: true},
	}
	first := e.DeriveCodes(a, true)
	second := e.DeriveCodes(a, true)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two derivations of the same snapshot differ:\n%+v\n%+v", first, second)
	}
}

func TestDeriveCodes_EBUSBoundary(t *testing.T) {
	e := newEngine(t)

	two := e.DeriveCodes(model.ClinicalActions{
		EBUS: model.EBUSActions{Performed: true, Stations: []string{"4R", "7"}},
	}, true)
	if !hasCode(two, model.CodeEBUSLow) || hasCode(two, model.CodeEBUSHigh) {
		t.Errorf("2 stations: expected %s only, got %v", model.CodeEBUSLow, codes(two))
	}

	three := e.DeriveCodes(model.ClinicalActions{
		EBUS: model.EBUSActions{Performed: true, Stations: []string{"4R", "7", "11L"}},
	}, true)
	if !hasCode(three, model.CodeEBUSHigh) || hasCode(three, model.CodeEBUSLow) {
		t.Errorf("3 stations: expected %s only, got %v", model.CodeEBUSHigh, codes(three))
	}

	rationale := findCode(t, three, model.CodeEBUSHigh).Rationale
	for _, station := range []string{"4R", "7", "11L"} {
		if !strings.Contains(rationale, station) {
			t.Errorf("rationale %q missing station %s", rationale, station)
		}
	}
}

func TestDeriveCodes_EBUSNoStationsDocumented(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{
		EBUS: model.EBUSActions{Performed: true},
	}, true)
	c := findCode(t, res, model.CodeEBUSLow)
	if c.Confidence >= confidenceFull {
		t.Errorf("expected reduced confidence, got %v", c.Confidence)
	}
	if !strings.Contains(c.Rationale, "no sampled stations documented") {
		t.Errorf("rationale should note missing documentation, got %q", c.Rationale)
	}
}

func TestDeriveCodes_BiopsyEquivalenceAndAddOns(t *testing.T) {
	e := newEngine(t)

	// Transbronchial and cryobiopsy resolve to the same primary code, once.
	both := e.DeriveCodes(model.ClinicalActions{
		Biopsy: model.BiopsyActions{Transbronchial: true, Cryobiopsy: true, Sites: []string{"RUL"}},
	}, true)
	count := 0
	for _, c := range codes(both) {
		if c == model.CodeTransbronchialBx {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one primary biopsy code, got %d in %v", count, codes(both))
	}

	// One add-on instance per additional unique site beyond the first.
	three := e.DeriveCodes(model.ClinicalActions{
		Biopsy: model.BiopsyActions{Cryobiopsy: true, Sites: []string{"RUL", "RML", "RLL"}},
	}, true)
	addOns := 0
	for _, c := range three.Codes {
		if model.BareCode(c.Code) == model.CodeTBBxAddlLobe {
			addOns++
			if !c.IsAddOn() {
				t.Errorf("additional-lobe code should carry add-on marker, got %q", c.Code)
			}
		}
	}
	if addOns != 2 {
		t.Errorf("3 sites: expected 2 add-on instances, got %d", addOns)
	}
}

func TestDeriveCodes_EndobronchialBiopsyDistinct(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{
		Biopsy: model.BiopsyActions{Endobronchial: true, EndobronchialSites: []string{"RMS"}},
	}, true)
	if !hasCode(res, model.CodeEndobronchialBx) {
		t.Errorf("expected endobronchial biopsy code, got %v", codes(res))
	}
	if hasCode(res, model.CodeTransbronchialBx) {
		t.Errorf("endobronchial biopsy must not trigger the transbronchial code")
	}
}

func TestDeriveCodes_NavigationRequiresPrimary(t *testing.T) {
	e := newEngine(t)

	alone := e.DeriveCodes(model.ClinicalActions{
		Navigation: model.NavigationActions{Performed: true, Platform: "superDimension"},
	}, true)
	if len(alone.Codes) != 0 {
		t.Errorf("navigation alone must yield nothing, got %v", codes(alone))
	}

	withEBUS := e.DeriveCodes(model.ClinicalActions{
		EBUS:       model.EBUSActions{Performed: true, Stations: []string{"7"}},
		Navigation: model.NavigationActions{Performed: true, Platform: "superDimension"},
	}, true)
	nav := findCode(t, withEBUS, model.CodeNavigation)
	if !nav.IsAddOn() {
		t.Errorf("navigation code should carry add-on marker, got %q", nav.Code)
	}
	if !strings.Contains(nav.Rationale, "superDimension") {
		t.Errorf("navigation rationale should embed platform, got %q", nav.Rationale)
	}
}

func TestDeriveCodes_BALAndBrushingsPresenceOnly(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{
		Lavage: model.LavageActions{
			BALPerformed:      true,
			BrushingPerformed: true,
			Sites:             []string{"RUL", "RML", "lingula"},
		},
	}, true)
	got := codes(res)
	if len(got) != 2 {
		t.Fatalf("expected exactly two codes regardless of site count, got %v", got)
	}
	if !hasCode(res, model.CodeBAL) || !hasCode(res, model.CodeBrushings) {
		t.Errorf("expected BAL and brushings codes, got %v", got)
	}
}

func TestDeriveCodes_PleuralIPCByAction(t *testing.T) {
	e := newEngine(t)

	ins := e.DeriveCodes(model.ClinicalActions{
		Pleural: model.PleuralActions{IPC: true, IPCAction: model.IPCInsertion},
	}, true)
	if !hasCode(ins, model.CodeIPCInsertion) {
		t.Errorf("expected IPC insertion code, got %v", codes(ins))
	}

	rem := e.DeriveCodes(model.ClinicalActions{
		Pleural: model.PleuralActions{IPC: true, IPCAction: model.IPCRemoval},
	}, true)
	if !hasCode(rem, model.CodeIPCRemoval) {
		t.Errorf("expected IPC removal code, got %v", codes(rem))
	}

	// Missing action degrades confidence, never errors.
	unknown := e.DeriveCodes(model.ClinicalActions{
		Pleural: model.PleuralActions{IPC: true},
	}, true)
	c := findCode(t, unknown, model.CodeIPCInsertion)
	if c.Confidence >= confidenceFull {
		t.Errorf("undocumented IPC action should reduce confidence, got %v", c.Confidence)
	}
}

func TestDeriveCodes_ThoracoscopyPleurodesisCombined(t *testing.T) {
	e := newEngine(t)

	diag := e.DeriveCodes(model.ClinicalActions{
		Pleural: model.PleuralActions{Thoracoscopy: true},
	}, true)
	if !hasCode(diag, model.CodeThoracoscopy) {
		t.Errorf("expected diagnostic thoracoscopy code, got %v", codes(diag))
	}

	combined := e.DeriveCodes(model.ClinicalActions{
		Pleural: model.PleuralActions{Thoracoscopy: true, Pleurodesis: true},
	}, true)
	if !hasCode(combined, model.CodeThoracoPleurodesis) || hasCode(combined, model.CodeThoracoscopy) {
		t.Errorf("expected pleurodesis-combined code only, got %v", codes(combined))
	}
}

func TestDeriveCodes_CAOEquivalenceAndDilation(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{
		CAO: model.CAOActions{ThermalAblation: true, Cryotherapy: true, Dilation: true},
	}, true)

	destruction := 0
	for _, c := range codes(res) {
		if c == model.CodeTumorDestruction {
			destruction++
		}
	}
	if destruction != 1 {
		t.Errorf("co-use of both modalities must yield one destruction code, got %d", destruction)
	}
	if !hasCode(res, model.CodeAirwayDilation) {
		t.Errorf("dilation should co-occur independently, got %v", codes(res))
	}
}

func TestDeriveCodes_StentDecisionTable(t *testing.T) {
	e := newEngine(t)
	cases := []struct {
		action   model.StentAction
		location model.StentLocation
		want     string
	}{
		{model.StentInsertion, model.StentTrachea, model.CodeStentTrachea},
		{model.StentInsertion, model.StentBronchus, model.CodeStentBronchus},
		{model.StentRemoval, model.StentTrachea, model.CodeStentRevision},
		{model.StentRemoval, model.StentBronchus, model.CodeStentRevision},
	}
	for _, tc := range cases {
		res := e.DeriveCodes(model.ClinicalActions{
			Stent: model.StentActions{Performed: true, Action: tc.action, Location: tc.location},
		}, true)
		if !hasCode(res, tc.want) {
			t.Errorf("%s/%s: expected %s, got %v", tc.action, tc.location, tc.want, codes(res))
		}
	}
}

func TestDeriveCodes_BLVRValveInstances(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{
		BLVR: model.BLVRActions{ChartisPerformed: true, ValveCount: 4, TargetLobe: "LUL"},
	}, true)

	if !hasCode(res, model.CodeChartis) {
		t.Errorf("expected Chartis code, got %v", codes(res))
	}
	valves := 0
	for _, c := range res.Codes {
		if model.BareCode(c.Code) == model.CodeBLVRValve {
			valves++
			if !strings.Contains(c.Rationale, "LUL") {
				t.Errorf("valve rationale should name target lobe, got %q", c.Rationale)
			}
		}
	}
	if valves != 4 {
		t.Errorf("valve_count=4: expected 4 add-on valve instances, got %d", valves)
	}
}

func TestDeriveCodes_BundlingObservable(t *testing.T) {
	e := newEngine(t)
	a := model.ClinicalActions{
		Pleural: model.PleuralActions{
			Thoracentesis: true,
			IPC:           true,
			IPCAction:     model.IPCInsertion,
		},
	}

	bundled := e.DeriveCodes(a, true)
	if hasCode(bundled, model.CodeThoracentesis) {
		t.Errorf("thoracentesis should be bundled into IPC insertion, got %v", codes(bundled))
	}
	if !hasCode(bundled, model.CodeIPCInsertion) {
		t.Errorf("IPC insertion should survive bundling, got %v", codes(bundled))
	}
	if len(bundled.BundledCodes) != 1 || bundled.BundledCodes[0] != model.CodeThoracentesis {
		t.Errorf("bundled codes should record the removal, got %v", bundled.BundledCodes)
	}
	if len(bundled.BundlingReasons) != len(bundled.BundledCodes) {
		t.Fatalf("every bundled code needs a reason: %v vs %v", bundled.BundledCodes, bundled.BundlingReasons)
	}
	if !strings.Contains(bundled.BundlingReasons[0], model.CodeIPCInsertion) {
		t.Errorf("bundling reason should name the subsuming code, got %q", bundled.BundlingReasons[0])
	}

	// apply_bundling=false skips the pass entirely.
	raw := e.DeriveCodes(a, false)
	if !hasCode(raw, model.CodeThoracentesis) {
		t.Errorf("bundling disabled: thoracentesis should remain, got %v", codes(raw))
	}
	if len(raw.BundledCodes) != 0 {
		t.Errorf("bundling disabled: no bundled codes expected, got %v", raw.BundledCodes)
	}
}

func TestDeriveCodes_DilationBundledIntoStent(t *testing.T) {
	e := newEngine(t)
	res := e.DeriveCodes(model.ClinicalActions{
		CAO:   model.CAOActions{Dilation: true},
		Stent: model.StentActions{Performed: true, Action: model.StentInsertion, Location: model.StentBronchus},
	}, true)
	if hasCode(res, model.CodeAirwayDilation) {
		t.Errorf("dilation should be bundled into stent placement, got %v", codes(res))
	}
	if len(res.BundledCodes) != 1 || res.BundledCodes[0] != model.CodeAirwayDilation {
		t.Errorf("expected dilation recorded as bundled, got %v", res.BundledCodes)
	}
}

func TestDeriveCodes_RationaleNeverEmpty(t *testing.T) {
	e := newEngine(t)
	a := model.ClinicalActions{
		EBUS:       model.EBUSActions{Performed: true, Stations: []string{"4R", "7", "11L"}},
		Biopsy:     model.BiopsyActions{Cryobiopsy: true, Sites: []string{"RUL", "RLL"}},
		Navigation: model.NavigationActions{Performed: true, Platform: "Ion"},
		Lavage:     model.LavageActions{BALPerformed: true, BrushingPerformed: true},
		Pleural:    model.PleuralActions{Thoracentesis: true},
		CAO:        model.CAOActions{ThermalAblation: true},
		BLVR:       model.BLVRActions{ChartisPerformed: true, ValveCount: 2, TargetLobe: "LLL"},
	}
	res := e.DeriveCodes(a, true)
	for _, c := range res.Codes {
		if c.Rationale == "" {
			t.Errorf("code %s has empty rationale", c.Code)
		}
		if len(c.EvidenceFields) == 0 {
			t.Errorf("code %s has no evidence fields", c.Code)
		}
	}
}

func TestDeriveCodes_EndToEnd(t *testing.T) {
	e := newEngine(t)
	a := model.ClinicalActions{
		EBUS:                   model.EBUSActions{Performed: true, Stations: []string{"4R", "7", "11L"}},
		Navigation:             model.NavigationActions{Performed: true, Platform: "superDimension"},
		DiagnosticBronchoscopy: true,
	}
	res := e.DeriveCodes(a, true)

	if !hasCode(res, model.CodeEBUSHigh) {
		t.Errorf("expected 3+ station EBUS code, got %v", codes(res))
	}
	nav := findCode(t, res, model.CodeNavigation)
	if !strings.Contains(nav.Rationale, "superDimension") {
		t.Errorf("navigation rationale missing platform, got %q", nav.Rationale)
	}
	if hasCode(res, model.CodeDiagnosticBronch) {
		t.Errorf("fallback must be suppressed by derived codes, got %v", codes(res))
	}
}

func TestNew_InvalidTaxonomy(t *testing.T) {
	tax := taxonomy.Default()
	tax.ReviewOverrides = map[string]float64{"31653": 1.5}
	if _, err := New(tax, zerolog.Nop()); err == nil {
		t.Fatal("expected construction error for out-of-range review override")
	}
	if _, err := New(nil, zerolog.Nop()); err == nil {
		t.Fatal("expected construction error for nil taxonomy")
	}
}
