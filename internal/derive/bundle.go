package derive

import (
	"fmt"

	"github.com/gyeh/pulmcoder/internal/model"
)

// bundleEdit removes a lower-value code when any of the listed higher-value
// codes is present in the same result.
type bundleEdit struct {
	remove  string
	keepers []string
	reason  string
}

// Payer bundling edits: the removed code is clinically subsumed by the keeper
// performed in the same encounter.
var bundleEdits = []bundleEdit{
	{
		remove:  model.CodeThoracentesis,
		keepers: []string{model.CodeIPCInsertion},
		reason:  "IPC insertion includes pleural fluid drainage",
	},
	{
		remove:  model.CodeAirwayDilation,
		keepers: []string{model.CodeStentTrachea, model.CodeStentBronchus},
		reason:  "airway dilation is included in stent placement",
	},
	{
		remove:  model.CodeChestTube,
		keepers: []string{model.CodeThoracoPleurodesis},
		reason:  "tube thoracostomy is included in thoracoscopy with pleurodesis",
	},
}

// bundle applies the payer bundling edits in place. Every removed code is
// appended to BundledCodes with a matching reason; bundling is observable,
// never silent.
func (e *Engine) bundle(res *model.DerivationResult) {
	for _, edit := range bundleEdits {
		if !res.Contains(edit.remove) {
			continue
		}
		keeper := ""
		for _, k := range edit.keepers {
			if res.Contains(k) {
				keeper = k
				break
			}
		}
		if keeper == "" {
			continue
		}

		kept := res.Codes[:0]
		for _, c := range res.Codes {
			if model.BareCode(c.Code) == edit.remove {
				continue
			}
			kept = append(kept, c)
		}
		res.Codes = kept
		res.BundledCodes = append(res.BundledCodes, edit.remove)
		res.BundlingReasons = append(res.BundlingReasons,
			fmt.Sprintf("%s bundled into %s: %s", edit.remove, keeper, edit.reason))

		e.log.Debug().
			Str("removed", edit.remove).
			Str("kept", keeper).
			Msg("code bundled")
	}
}
