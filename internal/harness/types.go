package harness

// TraceEvent records one scenario step and the state it produced.
type TraceEvent struct {
	Seq int64 `json:"seq"`
	// At is the scenario clock in seconds since the scenario start.
	At     float64        `json:"at"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
	// Status is the reducer status. Steps that only move the clock have none.
	Status string `json:"status,omitempty"`
	// Error is the integrity error code when the reducer rejected the step.
	Error string   `json:"error,omitempty"`
	Delta *Delta   `json:"delta,omitempty"`
	State Snapshot `json:"state"`
}

// Delta is what a step changed, beyond the snapshot itself.
type Delta struct {
	Currency       float64  `json:"currency,omitempty"`
	Exp            float64  `json:"exp,omitempty"`
	Cost           float64  `json:"cost,omitempty"`
	Prestige       float64  `json:"prestige,omitempty"`
	Crits          int      `json:"crits,omitempty"`
	LevelsGained   int      `json:"levelsGained,omitempty"`
	Evolutions     []string `json:"evolutions,omitempty"`
	OfflineSeconds float64  `json:"offlineSeconds,omitempty"`
}

func (d Delta) empty() bool {
	return d.Currency == 0 && d.Exp == 0 && d.Cost == 0 && d.Prestige == 0 &&
		d.Crits == 0 && d.LevelsGained == 0 && len(d.Evolutions) == 0 && d.OfflineSeconds == 0
}

// Snapshot is the part of the game state scenarios assert on.
type Snapshot struct {
	Species          string         `json:"species"`
	Level            int            `json:"level"`
	Exp              float64        `json:"exp"`
	Currency         float64        `json:"currency"`
	PerTap           float64        `json:"perTap"`
	PerSecond        float64        `json:"perSecond"`
	XPPerTap         float64        `json:"xpPerTap"`
	XPPerSecond      float64        `json:"xpPerSecond"`
	Upgrades         map[string]int `json:"upgrades,omitempty"`
	Prestige         float64        `json:"prestige,omitempty"`
	Ascensions       int            `json:"ascensions,omitempty"`
	PrestigeUpgrades map[string]int `json:"prestigeUpgrades,omitempty"`
	Phase            string         `json:"phase"`
	Minigame         string         `json:"minigame,omitempty"`
	Buffs            []string       `json:"buffs,omitempty"`
	Sound            bool           `json:"sound"`
	Vibration        bool           `json:"vibration"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause, assertion and invariant held.
	Pass  bool         `json:"pass"`
	Trace []TraceEvent `json:"trace"`
	// Errors is empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
	// Final is the state after the last step.
	Final Snapshot `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
