package model

import "time"

// CatchState is the navigator's position in one expedition.
type CatchState string

const (
	StateCollecting CatchState = "COLLECTING"
	StateExtracting CatchState = "EXTRACTING"
	StateIndexing   CatchState = "INDEXING"
	StateAligning   CatchState = "ALIGNING"
	StateGraphWrite CatchState = "GRAPH_WRITE"
	StateTestSynth  CatchState = "TEST_SYNTH"
	StateValidating CatchState = "VALIDATING"
	StateDeploying  CatchState = "DEPLOYING"

	StateDeployed  CatchState = "DEPLOYED"
	StateFailed    CatchState = "FAILED"
	StateAbandoned CatchState = "ABANDONED"
)

// Terminal reports whether the state ends an expedition.
func (s CatchState) Terminal() bool {
	return s == StateDeployed || s == StateFailed || s == StateAbandoned
}

// ValidationCycle is one iteration of the bounded validation loop.
// Cycles are appended to a catch's history and never removed.
type ValidationCycle struct {
	Number    int       `json:"number"`
	Executed  int       `json:"executed"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	PassRate  float64   `json:"pass_rate"`
	Timestamp time.Time `json:"timestamp"`
}

// GapReport names what a failed validation cycle could not demonstrate.
// It drives the next targeted re-extraction; the retry strategy decides
// whether to re-read the same sources or ask for new ones.
type GapReport struct {
	Cycle               int      `json:"cycle"`
	MissingCapabilities []string `json:"missing_capabilities,omitempty"`
	FailedScenarios     []string `json:"failed_scenarios,omitempty"`
	ConsumedSources     []string `json:"consumed_sources"` // Source hashes already extracted
	PriorPassRate       float64  `json:"prior_pass_rate"`
}

// Catch is one expedition's bundle: the domain, the facts it committed
// (by id, never by pointer), the generated scenarios and manifest, and the
// full validation history. Once DEPLOYED only the history and the parity
// record may grow.
type Catch struct {
	ID        string             `json:"id"`
	Domain    string             `json:"domain"`
	State     CatchState         `json:"state"`
	FactIDs   []string           `json:"fact_ids"`
	Scenarios []BehaviorScenario `json:"scenarios,omitempty"`
	Manifest  *CapabilityManifest `json:"manifest,omitempty"`
	History   []ValidationCycle  `json:"history"`
	LastGap   *GapReport         `json:"last_gap,omitempty"`
	Parity    *ParityResult      `json:"parity,omitempty"` // Latest evaluation, shortfall included
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Cycles returns how many validation cycles have run.
func (c *Catch) Cycles() int {
	return len(c.History)
}
