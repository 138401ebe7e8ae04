// Package window debounces raw per-tick group modes into stable modes via
// trailing-run hysteresis over a bounded history.
package window

import (
	"sync"

	"sensorfuse/internal/model"
)

// Params holds the per-mode persistence thresholds. A mode becomes stable
// only after a trailing consecutive run of that length; recovery to OK needs
// its own streak.
type Params struct {
	DegradedK     int `json:"degraded_k" yaml:"degraded_k"`
	ReducedK      int `json:"reduced_k" yaml:"reduced_k"`
	InconsistentK int `json:"inconsistent_k" yaml:"inconsistent_k"`
	FailoverK     int `json:"failover_k" yaml:"failover_k"`
	OKRecoverK    int `json:"ok_recover_k" yaml:"ok_recover_k"`
	MaxHistory    int `json:"max_history" yaml:"max_history"`
}

// DefaultParams returns the stock thresholds.
func DefaultParams() Params {
	return Params{
		DegradedK:     3,
		ReducedK:      3,
		InconsistentK: 2,
		FailoverK:     5,
		OKRecoverK:    3,
		MaxHistory:    10,
	}
}

type groupState struct {
	history []model.Mode
	stable  model.Mode
}

// Decider tracks per-group mode history. State is created on first use and
// only discarded by Reset. Not safe for concurrent writers on the same key;
// the caller serializes updates per owning entity.
type Decider struct {
	mu     sync.Mutex
	params Params
	state  map[string]*groupState
}

// NewDecider builds a decider; zero thresholds fall back to defaults.
func NewDecider(p Params) *Decider {
	def := DefaultParams()
	if p.DegradedK <= 0 {
		p.DegradedK = def.DegradedK
	}
	if p.ReducedK <= 0 {
		p.ReducedK = def.ReducedK
	}
	if p.InconsistentK <= 0 {
		p.InconsistentK = def.InconsistentK
	}
	if p.FailoverK <= 0 {
		p.FailoverK = def.FailoverK
	}
	if p.OKRecoverK <= 0 {
		p.OKRecoverK = def.OKRecoverK
	}
	if p.MaxHistory <= 0 {
		p.MaxHistory = def.MaxHistory
	}
	return &Decider{params: p, state: make(map[string]*groupState)}
}

// Reset drops all per-group history.
func (d *Decider) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = make(map[string]*groupState)
}

func (d *Decider) get(name string) *groupState {
	st, ok := d.state[name]
	if !ok {
		st = &groupState{stable: model.ModeOK}
		d.state[name] = st
	}
	return st
}

func trailingRun(hist []model.Mode, m model.Mode) int {
	n := 0
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i] != m {
			break
		}
		n++
	}
	return n
}

// Update appends a raw mode for the group and returns the debounced stable
// mode. The raw mode is never discarded; callers report both.
func (d *Decider) Update(group string, raw model.Mode) model.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.get(group)
	st.history = append(st.history, raw)
	if len(st.history) > d.params.MaxHistory {
		st.history = st.history[len(st.history)-d.params.MaxHistory:]
	}

	switch {
	case trailingRun(st.history, model.ModeFailover) >= d.params.FailoverK:
		st.stable = model.ModeFailover
	case trailingRun(st.history, model.ModeInconsistent) >= d.params.InconsistentK:
		st.stable = model.ModeInconsistent
	case trailingRun(st.history, model.ModeDegraded) >= d.params.DegradedK:
		st.stable = model.ModeDegraded
	case trailingRun(st.history, model.ModeReduced) >= d.params.ReducedK:
		st.stable = model.ModeReduced
	case st.stable != model.ModeOK:
		if trailingRun(st.history, model.ModeOK) >= d.params.OKRecoverK {
			st.stable = model.ModeOK
		}
	default:
		st.stable = model.ModeOK
	}
	return st.stable
}

// Stable reports the current stable mode for a group without recording a
// tick. Groups never seen report OK.
func (d *Decider) Stable(group string) model.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.state[group]; ok {
		return st.stable
	}
	return model.ModeOK
}
