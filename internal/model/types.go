package model

import (
	"time"

	"sensorfuse/internal/algebra"
)

// Mode is the discrete health state of a sensor group (or the whole system).
type Mode string

const (
	ModeOK           Mode = "OK"
	ModeReduced      Mode = "REDUCED"
	ModeDegraded     Mode = "DEGRADED"
	ModeInconsistent Mode = "INCONSISTENT"
	ModeFailover     Mode = "FAILOVER"
)

// Rank orders modes by severity.
func (m Mode) Rank() int {
	switch m {
	case ModeReduced:
		return 1
	case ModeDegraded:
		return 2
	case ModeInconsistent:
		return 3
	case ModeFailover:
		return 4
	default:
		return 0
	}
}

// WorstMode returns the highest-ranked mode, OK for an empty list.
func WorstMode(modes []Mode) Mode {
	worst := ModeOK
	for _, m := range modes {
		if m.Rank() > worst.Rank() {
			worst = m
		}
	}
	return worst
}

// TypedReading is one sensor sample lifted into the algebra, with provenance.
type TypedReading struct {
	SensorID  string
	Value     algebra.Value
	Timestamp time.Time
	Source    string
	Raw       *float64
}

// PointReading is one raw point value as pushed by a collector. A nil Value
// marks an explicitly missing sample.
type PointReading struct {
	Point   string   `json:"point"`
	Value   *float64 `json:"value"`
	Quality string   `json:"quality,omitempty"`
}

// ReadingBatch is one tick worth of point readings for a building.
type ReadingBatch struct {
	BuildingID int64          `json:"building_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Readings   []PointReading `json:"readings"`
	Source     string         `json:"source,omitempty"`
}

// GroupSpec configures one logical sensor group. Immutable for a run.
type GroupSpec struct {
	Name             string             `json:"name" yaml:"name"`
	Sensors          []string           `json:"sensors" yaml:"sensors"`
	RequiredEligible int                `json:"required_eligible" yaml:"required_eligible"`
	AgreeEps         float64            `json:"agree_eps" yaml:"agree_eps"`
	MaxOutliers      int                `json:"max_outliers" yaml:"max_outliers"`
	OptionalSensors  []string           `json:"optional_sensors,omitempty" yaml:"optional_sensors"`
	Weights          map[string]float64 `json:"weights,omitempty" yaml:"weights"`
}

// Optional reports whether the named sensor is optional in this group.
func (g GroupSpec) Optional(sensorID string) bool {
	for _, s := range g.OptionalSensors {
		if s == sensorID {
			return true
		}
	}
	return false
}

// Severity grades pair faults and aggregated subsystem faults.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityInfo     Severity = "info"
	SeverityReduced  Severity = "reduced"
	SeverityWarning  Severity = "warning"
	SeverityFault    Severity = "fault"
	SeverityCritical Severity = "critical"
	SeverityCascade  Severity = "cascade"
)

// Pair status values produced by pair analysis.
const (
	PairStatusOK       = "OK"
	PairStatusFault    = "FAULT"
	PairStatusOffline  = "OFFLINE"
	PairStatusInactive = "INACTIVE"
)

// PairFault is one pair-level check result; the fault aggregator consumes the
// FAULT-status subset of these.
type PairFault struct {
	Name      string   `json:"name"`
	Group     string   `json:"group"`
	Status    string   `json:"status"`
	Severity  Severity `json:"severity"`
	Diagnosis string   `json:"diagnosis,omitempty"`
	ValA      *float64 `json:"val_a"`
	ValB      *float64 `json:"val_b"`
	Delta     *float64 `json:"delta,omitempty"`
	Ratio     *float64 `json:"ratio,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Eps       float64  `json:"eps,omitempty"`
	PairType  string   `json:"pair_type,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	ColA      string   `json:"col_a,omitempty"`
	ColB      string   `json:"col_b,omitempty"`
}
