package model

// IPCAction identifies what was done with an indwelling pleural catheter.
type IPCAction string

const (
	IPCInsertion IPCAction = "insertion"
	IPCRemoval   IPCAction = "removal"
)

// StentAction identifies what was done with an airway stent.
type StentAction string

const (
	StentInsertion StentAction = "insertion"
	StentRemoval   StentAction = "removal"
)

// StentLocation identifies where an airway stent action took place.
type StentLocation string

const (
	StentTrachea  StentLocation = "trachea"
	StentBronchus StentLocation = "bronchus"
)

// EBUSActions records endobronchial ultrasound sampling.
type EBUSActions struct {
	Performed bool     `json:"performed"`
	Stations  []string `json:"stations"` // e.g. "4R", "7", "11L"
}

// BiopsyActions records tissue sampling by technique and site.
type BiopsyActions struct {
	Transbronchial     bool     `json:"transbronchial"`
	Cryobiopsy         bool     `json:"cryobiopsy"`
	Endobronchial      bool     `json:"endobronchial"`
	Sites              []string `json:"sites"` // lobes sampled transbronchially/cryo
	EndobronchialSites []string `json:"endobronchial_sites"`
}

// NavigationActions records electromagnetic/robotic navigation use.
type NavigationActions struct {
	Performed bool   `json:"performed"`
	Platform  string `json:"platform"` // e.g. "superDimension", "Ion"
}

// LavageActions records bronchoalveolar lavage and brushings.
type LavageActions struct {
	BALPerformed      bool     `json:"bal_performed"`
	BrushingPerformed bool     `json:"brushing_performed"`
	Sites             []string `json:"sites"`
}

// PleuralActions records pleural-space procedures.
type PleuralActions struct {
	Thoracentesis bool      `json:"thoracentesis"`
	IPC           bool      `json:"ipc"`
	IPCAction     IPCAction `json:"ipc_action"`
	ChestTube     bool      `json:"chest_tube"`
	Thoracoscopy  bool      `json:"thoracoscopy"`
	Pleurodesis   bool      `json:"pleurodesis"`
}

// CAOActions records central-airway-obstruction treatment.
type CAOActions struct {
	ThermalAblation bool `json:"thermal_ablation"`
	Cryotherapy     bool `json:"cryotherapy"`
	Dilation        bool `json:"dilation"`
}

// StentActions records airway stent work.
type StentActions struct {
	Performed bool          `json:"performed"`
	Action    StentAction   `json:"action"`
	Location  StentLocation `json:"location"`
}

// BLVRActions records bronchoscopic lung volume reduction work.
type BLVRActions struct {
	ChartisPerformed bool   `json:"chartis_performed"`
	ValveCount       int    `json:"valve_count"`
	TargetLobe       string `json:"target_lobe"`
}

// ClinicalActions is an immutable snapshot of what was clinically performed in
// one encounter. The extraction collaborator builds it once per note; every
// derivation call is a pure read. It is passed by value so callers cannot
// observe mutation even accidentally.
type ClinicalActions struct {
	EBUS                   EBUSActions       `json:"ebus"`
	Biopsy                 BiopsyActions     `json:"biopsy"`
	Navigation             NavigationActions `json:"navigation"`
	Lavage                 LavageActions     `json:"lavage"`
	Pleural                PleuralActions    `json:"pleural"`
	CAO                    CAOActions        `json:"cao"`
	Stent                  StentActions      `json:"stent"`
	BLVR                   BLVRActions       `json:"blvr"`
	DiagnosticBronchoscopy bool              `json:"diagnostic_bronchoscopy"`
}
