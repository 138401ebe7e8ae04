// Package pairs runs per-tick sensor pair checks: command vs position,
// setpoint vs measured, and redundant-instance comparisons. Direct HVAC
// pairs use threshold comparison; everything else falls back to algebra
// pairwise consistency.
package pairs

import (
	"fmt"
	"strings"
	"time"

	"sensorfuse/internal/classify"
	"sensorfuse/internal/fusion"
	"sensorfuse/internal/model"
)

// Pair types.
const (
	TypeCmdPos   = "cmd_pos"
	TypeMeasSetp = "meas_setp"
	TypeCustom   = "custom"
)

// SensorPair configures one static pair check.
type SensorPair struct {
	Name     string   `json:"name" yaml:"name"`
	Group    string   `json:"group" yaml:"group"`
	ColA     string   `json:"col_a" yaml:"col_a"`
	ColB     string   `json:"col_b" yaml:"col_b"`
	PairType string   `json:"pair_type" yaml:"pair_type"`
	Eps      float64  `json:"eps" yaml:"eps"`
	Unit     string   `json:"unit,omitempty" yaml:"unit"`
	RangeMin *float64 `json:"range_min,omitempty" yaml:"range_min"`
	RangeMax *float64 `json:"range_max,omitempty" yaml:"range_max"`
}

func (p SensorPair) limits() classify.Limits {
	return classify.Limits{RangeMin: p.RangeMin, RangeMax: p.RangeMax}
}

func (p SensorPair) multiInstance() bool {
	return p.PairType == TypeCustom &&
		(strings.Contains(p.ColA, "_I0") || strings.Contains(p.ColB, "_I1"))
}

func (p SensorPair) outOfRange(v *float64) bool {
	if v == nil {
		return false
	}
	if p.RangeMin != nil && *v < *p.RangeMin {
		return true
	}
	if p.RangeMax != nil && *v > *p.RangeMax {
		return true
	}
	return false
}

// TickResult is the pair-level rollup for one tick.
type TickResult struct {
	Timestamp    time.Time         `json:"timestamp"`
	Pairs        []model.PairFault `json:"pairs"`
	SystemStatus string            `json:"system_status"`
	FaultCount   int               `json:"fault_count"`
	OKCount      int               `json:"ok_count"`
}

var criticalGroups = map[string]bool{
	"valve": true, "sat": true, "chw": true,
	"imu": true, "baro": true, "gps": true,
}

// AnalyzeTick evaluates every configured pair against one tick's values.
// A nil map entry (or absent key) is an explicitly missing sample.
func AnalyzeTick(row map[string]*float64, pairs []SensorPair, ts time.Time) TickResult {
	out := TickResult{Timestamp: ts}
	for _, p := range pairs {
		out.Pairs = append(out.Pairs, analyzePair(row, p, ts))
	}
	for _, pr := range out.Pairs {
		switch pr.Status {
		case model.PairStatusFault:
			out.FaultCount++
		case model.PairStatusOK:
			out.OKCount++
		}
	}
	out.SystemStatus = model.PairStatusOK
	if out.FaultCount > 0 {
		out.SystemStatus = model.PairStatusFault
	}
	return out
}

func analyzePair(row map[string]*float64, p SensorPair, ts time.Time) model.PairFault {
	ra := classify.Classify(p.Name+"_A", row[p.ColA], ts, "BAS", p.limits())
	rb := classify.Classify(p.Name+"_B", row[p.ColB], ts, "BAS", p.limits())
	valA, valB := ra.Raw, rb.Raw

	pf := model.PairFault{
		Name:     p.Name,
		Group:    p.Group,
		ValA:     valA,
		ValB:     valB,
		Eps:      p.Eps,
		PairType: p.PairType,
		Unit:     p.Unit,
		ColA:     p.ColA,
		ColB:     p.ColB,
	}
	if valA != nil && valB != nil {
		d := *valA - *valB
		if d < 0 {
			d = -d
		}
		pf.Delta = &d
	}

	switch {
	case p.multiInstance():
		analyzeInstancePair(&pf, p, valA, valB)
		pf.Tag = directTag(pf.Status)
	case p.PairType == TypeCmdPos || p.PairType == TypeMeasSetp:
		analyzeDirectPair(&pf, p, valA, valB)
		pf.Tag = directTag(pf.Status)
	default:
		analyzeAlgebraPair(&pf, p, ra, rb, valA, valB)
	}
	return pf
}

func directTag(status string) string {
	switch status {
	case model.PairStatusFault:
		return fusion.Disagree
	case model.PairStatusOffline:
		return fusion.Inapplicable
	default:
		return fusion.Agree
	}
}

// analyzeDirectPair compares setpoint vs measured or command vs feedback
// by absolute difference.
func analyzeDirectPair(pf *model.PairFault, p SensorPair, valA, valB *float64) {
	switch {
	case valA == nil && valB == nil:
		pf.Status = model.PairStatusOffline
		pf.Severity = model.SeverityWarning
		pf.Diagnosis = "Both values missing"
		return
	case valA == nil:
		pf.Status = model.PairStatusFault
		pf.Severity = model.SeverityCritical
		pf.Diagnosis = fmt.Sprintf("Setpoint/Command missing, measured=%.1f%s", *valB, p.Unit)
		return
	case valB == nil:
		pf.Status = model.PairStatusFault
		pf.Severity = model.SeverityCritical
		pf.Diagnosis = fmt.Sprintf("Measured/Feedback missing, setpoint=%.1f%s", *valA, p.Unit)
		return
	}

	delta := *pf.Delta
	if delta <= p.Eps {
		pf.Status = model.PairStatusOK
		pf.Severity = model.SeverityOK
		return
	}
	pf.Status = model.PairStatusFault
	if p.PairType == TypeCmdPos {
		pf.Severity = model.SeverityCritical
		pf.Diagnosis = fmt.Sprintf("CMD=%.0f%% but POS=%.0f%%, actuator not following command (delta=%.1f%%)", *valA, *valB, delta)
		return
	}
	pf.Severity = model.SeverityWarning
	if p.Group == "sat" || p.Group == "chw" || p.Group == "valve" {
		pf.Severity = model.SeverityCritical
	}
	pf.Diagnosis = fmt.Sprintf("Setpoint=%.1f%s but Measured=%.1f%s (delta=%.1f%s > eps=%g)", *valA, p.Unit, *valB, p.Unit, delta, p.Unit, p.Eps)
}

// analyzeInstancePair symmetrically compares redundant sensor instances.
func analyzeInstancePair(pf *model.PairFault, p SensorPair, valA, valB *float64) {
	switch {
	case valA == nil && valB == nil:
		pf.Status = model.PairStatusOffline
		pf.Severity = model.SeverityWarning
		pf.Diagnosis = "Both instances missing data"
		return
	case valA == nil:
		pf.Status = model.PairStatusFault
		pf.Severity = model.SeverityCritical
		pf.Diagnosis = fmt.Sprintf("Instance 0 missing, other=%.3f%s", *valB, p.Unit)
		return
	case valB == nil:
		pf.Status = model.PairStatusFault
		pf.Severity = model.SeverityCritical
		pf.Diagnosis = fmt.Sprintf("Instance 1 missing, other=%.3f%s", *valA, p.Unit)
		return
	}

	delta := *pf.Delta
	if delta <= p.Eps {
		pf.Status = model.PairStatusOK
		pf.Severity = model.SeverityOK
		return
	}
	pf.Status = model.PairStatusFault
	pf.Severity = model.SeverityCritical
	pf.Diagnosis = fmt.Sprintf("I0=%.4f vs I1=%.4f (delta=%.4f > eps=%g)", *valA, *valB, delta, p.Eps)
}

// analyzeAlgebraPair runs algebra pairwise consistency and escalates
// range violations hidden behind indeterminate or agreeing values.
func analyzeAlgebraPair(pf *model.PairFault, p SensorPair, ra, rb model.TypedReading, valA, valB *float64) {
	pw := fusion.Pairwise(ra, rb, p.Eps)
	pf.Tag = pw.Agreement
	if r, ok := pw.Ratio.Float(); ok {
		pf.Ratio = &r
	}
	oorA, oorB := p.outOfRange(valA), p.outOfRange(valB)

	switch pw.Agreement {
	case fusion.Inapplicable:
		pf.Status = model.PairStatusOffline
		pf.Severity = model.SeverityWarning
	case fusion.Indeterminate, fusion.Resolved:
		if oorA || oorB {
			pf.Status = model.PairStatusFault
			pf.Severity = model.SeverityCritical
			pf.Diagnosis = rangeDiagnosis(p, valA, valB, oorA, oorB)
			return
		}
		pf.Status = model.PairStatusInactive
		pf.Severity = model.SeverityOK
	case fusion.Agree:
		if oorA && oorB {
			pf.Status = model.PairStatusFault
			pf.Severity = model.SeverityCritical
			pf.Diagnosis = fmt.Sprintf("Both sensors out of range [%v, %v]: A=%.2f, B=%.2f", fmtBound(p.RangeMin), fmtBound(p.RangeMax), *valA, *valB)
			return
		}
		pf.Status = model.PairStatusOK
		pf.Severity = model.SeverityOK
	case fusion.Disagree:
		pf.Status = model.PairStatusFault
		pf.Severity = model.SeverityWarning
		if criticalGroups[p.Group] {
			pf.Severity = model.SeverityCritical
		}
		pf.Diagnosis = disagreeDiagnosis(p, valA, valB)
	default:
		pf.Status = model.PairStatusOK
		pf.Severity = model.SeverityOK
	}
}

func rangeDiagnosis(p SensorPair, valA, valB *float64, oorA, oorB bool) string {
	var parts []string
	if oorA && valA != nil {
		parts = append(parts, fmt.Sprintf("A=%.2f", *valA))
	}
	if oorB && valB != nil {
		parts = append(parts, fmt.Sprintf("B=%.2f", *valB))
	}
	return fmt.Sprintf("Out of range [%v, %v]: %s", fmtBound(p.RangeMin), fmtBound(p.RangeMax), strings.Join(parts, ", "))
}

var instanceGroups = map[string]bool{
	"custom": true, "imu": true, "baro": true,
	"gps": true, "mag": true, "airspeed": true,
}

func disagreeDiagnosis(p SensorPair, valA, valB *float64) string {
	if valA == nil || valB == nil {
		return "Sensor data missing"
	}
	if p.PairType == TypeCmdPos {
		return fmt.Sprintf("CMD=%.0f%% but POS=%.0f%%, actuator not following command", *valA, *valB)
	}
	diff := *valA - *valB
	if diff < 0 {
		diff = -diff
	}
	if p.PairType == TypeCustom || instanceGroups[p.Group] ||
		strings.Contains(p.ColA, "_I0") || strings.Contains(p.ColB, "_I1") {
		return fmt.Sprintf("Instance 0=%.4f%s vs Instance 1=%.4f%s (delta=%.4f, eps=%g)", *valA, p.Unit, *valB, p.Unit, diff, p.Eps)
	}
	return fmt.Sprintf("Measured=%.1f%s vs Setpoint=%.1f%s (delta=%.1f%s)", *valA, p.Unit, *valB, p.Unit, diff, p.Unit)
}

func fmtBound(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

// ClassifyBAS lifts a raw BAS text field into a typed reading, honoring
// the pair's physical range.
func ClassifyBAS(p SensorPair, sensorID, raw string, ts time.Time) model.TypedReading {
	return classify.ClassifyField(sensorID, raw, ts, "BAS", p.limits())
}
