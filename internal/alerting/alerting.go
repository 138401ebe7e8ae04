// Package alerting confirms root-cause faults across analysis cycles. A
// fault must persist for a streak of cycles before an alert fires, a clear
// streak fully resets the incident, and a per-key cooldown suppresses
// refires.
package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sensorfuse/internal/faults"
	"sensorfuse/internal/model"
)

// Stock thresholds.
const (
	DefaultConfirmAfter     = 3
	DefaultClearAfter       = DefaultConfirmAfter * 2
	DefaultCooldownDuration = 1800 * time.Second
)

// Params configures one alerting engine.
type Params struct {
	ConfirmAfter int           `json:"confirm_after" yaml:"confirm_after"`
	ClearAfter   int           `json:"clear_after" yaml:"clear_after"`
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
}

// DefaultParams returns the stock thresholds.
func DefaultParams() Params {
	return Params{
		ConfirmAfter: DefaultConfirmAfter,
		ClearAfter:   DefaultClearAfter,
		Cooldown:     DefaultCooldownDuration,
	}
}

// AlertState is the per-fault streak record.
type AlertState struct {
	FaultKey      string    `json:"fault_key"`
	BuildingID    int64     `json:"building_id"`
	PresentStreak int       `json:"present_streak"`
	AbsentStreak  int       `json:"absent_streak"`
	Active        bool      `json:"active"`
	Confirmed     bool      `json:"confirmed"`
	LastAlertedAt time.Time `json:"last_alerted_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// AlertEvent is one fired alert. Named fields carry the display surface;
// Details carries the rest of the aggregated fault verbatim.
type AlertEvent struct {
	ID            string         `json:"id"`
	BuildingID    int64          `json:"building_id"`
	FaultKey      string         `json:"fault_key"`
	Subsystem     string         `json:"subsystem"`
	SubsystemName string         `json:"subsystem_name"`
	Severity      model.Severity `json:"severity"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Details       EventDetails   `json:"details"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EventDetails is the non-display remainder of the aggregated fault.
type EventDetails struct {
	DetailsMessage string                   `json:"details_message"`
	PrimaryFault   faults.ClassifiedFault   `json:"primary_fault"`
	Cascades       []faults.ClassifiedFault `json:"cascades,omitempty"`
	FaultType      faults.FaultType         `json:"fault_type"`
	RuleApplied    string                   `json:"rule_applied,omitempty"`
	CascadeCount   int                      `json:"cascade_count"`
}

// FaultKey builds the tracking key for one aggregated fault.
func FaultKey(buildingID int64, f faults.AggregatedFault) string {
	return fmt.Sprintf("%d:%s:%s:%s", buildingID, f.Subsystem, f.PrimaryFault.PairType, f.PrimaryFault.Name)
}

// Engine holds alert states keyed per building. Safe for concurrent use
// across buildings; within one building, Update calls are serialized by
// the mutex so callers get consistent streak math either way.
type Engine struct {
	mu     sync.Mutex
	params Params
	states map[string]*AlertState
}

// NewEngine builds an engine; zero thresholds fall back to defaults.
func NewEngine(p Params) *Engine {
	def := DefaultParams()
	if p.ConfirmAfter <= 0 {
		p.ConfirmAfter = def.ConfirmAfter
	}
	if p.ClearAfter <= 0 {
		p.ClearAfter = def.ClearAfter
	}
	if p.Cooldown <= 0 {
		p.Cooldown = def.Cooldown
	}
	return &Engine{params: p, states: make(map[string]*AlertState)}
}

// Update runs one alerting cycle for a building and returns the alerts that
// freshly confirmed this cycle. Only root-cause faults are tracked; cascades
// never alert on their own.
func (e *Engine) Update(buildingID int64, subsystemFaults []faults.AggregatedFault, now time.Time) []AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	present := make(map[string]faults.AggregatedFault)
	for _, f := range subsystemFaults {
		if f.FaultType != faults.RootCause {
			continue
		}
		present[FaultKey(buildingID, f)] = f
	}

	var fired []AlertEvent

	for key, fault := range present {
		st, ok := e.states[key]
		if !ok {
			st = &AlertState{FaultKey: key, BuildingID: buildingID}
			e.states[key] = st
		}
		st.PresentStreak++
		st.AbsentStreak = 0
		st.Active = true
		st.LastSeenAt = now

		if st.PresentStreak < e.params.ConfirmAfter || st.Confirmed {
			continue
		}

		if !st.LastAlertedAt.IsZero() && now.Sub(st.LastAlertedAt) < e.params.Cooldown {
			// Within cooldown: confirm silently, no event.
			st.Confirmed = true
			continue
		}

		st.Confirmed = true
		st.LastAlertedAt = now

		fired = append(fired, AlertEvent{
			ID:            uuid.NewString(),
			BuildingID:    buildingID,
			FaultKey:      key,
			Subsystem:     fault.Subsystem,
			SubsystemName: fault.SubsystemName,
			Severity:      fault.Severity,
			Title:         fmt.Sprintf("%s: %s", fault.SubsystemName, fault.PrimaryFault.Name),
			Message:       fault.Message,
			Details: EventDetails{
				DetailsMessage: fault.DetailsMessage,
				PrimaryFault:   fault.PrimaryFault,
				Cascades:       fault.Cascades,
				FaultType:      fault.FaultType,
				RuleApplied:    fault.RuleApplied,
				CascadeCount:   len(fault.Cascades),
			},
			CreatedAt: now,
		})
	}

	for key, st := range e.states {
		if st.BuildingID != buildingID {
			continue
		}
		if _, ok := present[key]; ok {
			continue
		}
		st.AbsentStreak++
		st.PresentStreak = 0
		if st.AbsentStreak >= e.params.ClearAfter {
			st.Active = false
			st.Confirmed = false
		}
	}

	return fired
}

// States returns a snapshot of the tracked states for one building.
func (e *Engine) States(buildingID int64) []AlertState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []AlertState
	for _, st := range e.states {
		if st.BuildingID == buildingID {
			out = append(out, *st)
		}
	}
	return out
}

// Reset drops all tracked state for one building.
func (e *Engine) Reset(buildingID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, st := range e.states {
		if st.BuildingID == buildingID {
			delete(e.states, key)
		}
	}
}
