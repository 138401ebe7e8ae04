// Package fusion combines typed sensor readings into a per-group health
// mode. All numeric work goes through the algebra; the mode logic only
// inspects the algebraic kinds of the results.
package fusion

import (
	"fmt"
	"strings"

	"sensorfuse/internal/algebra"
	"sensorfuse/internal/model"
)

// Agreement labels derived from the algebraic kind of a pairwise ratio.
const (
	Agree         = "AGREE"
	Disagree      = "DISAGREE"
	Indeterminate = "INDETERMINATE"
	Inapplicable  = "INAPPLICABLE"
	Resolved      = "RESOLVED"
)

// PairwiseResult is the consistency verdict for one sensor pair.
type PairwiseResult struct {
	SensorA   string        `json:"sensor_a"`
	SensorB   string        `json:"sensor_b"`
	Ratio     algebra.Value `json:"-"`
	Level     int           `json:"level"`
	Agreement string        `json:"agreement"`
}

// SensorAlert is the per-sensor health derived from its algebraic kind.
type SensorAlert struct {
	SensorID  string `json:"sensor_id"`
	ValueKind string `json:"value_kind"`
	Alert     string `json:"alert"`
	Optional  bool   `json:"optional"`
}

// Per-sensor alert values.
const (
	SensorOK       = "OK"
	SensorOffline  = "OFFLINE"
	SensorDegraded = "DEGRADED"
)

// Result carries everything fuse computed for one group on one tick.
// Confidence and Redundancy hold the same eligible/total ratio; both
// fields are part of the external contract.
type Result struct {
	FusedValue    algebra.Value
	FusedSum      algebra.Value
	EligibleCount int
	TotalCount    int
	DefiniteCount int
	Pairwise      []PairwiseResult
	SensorAlerts  []SensorAlert
	Confidence    float64
	Redundancy    float64
	Mode          model.Mode
	Reasons       []string
}

// Pairwise compares two readings via algebra division. The agreement label
// follows the kind of the ratio, not its numeric value directly.
func Pairwise(a, b model.TypedReading, eps float64) PairwiseResult {
	ratio := a.Value.Div(b.Value)
	pr := PairwiseResult{
		SensorA: a.SensorID,
		SensorB: b.SensorID,
		Ratio:   ratio,
		Level:   ratio.Level(),
	}
	switch ratio.Kind() {
	case algebra.KindReal:
		v, _ := ratio.Float()
		if abs(v-1.0) < eps {
			pr.Agreement = Agree
		} else {
			pr.Agreement = Disagree
		}
	case algebra.KindMeasZero:
		pr.Agreement = Indeterminate
	case algebra.KindAbsZero:
		pr.Agreement = Inapplicable
	case algebra.KindResToken:
		pr.Agreement = Resolved
	}
	return pr
}

// AllPairwise computes every unordered sensor pair in order.
func AllPairwise(readings []model.TypedReading, eps float64) []PairwiseResult {
	var out []PairwiseResult
	for i := 0; i < len(readings); i++ {
		for j := i + 1; j < len(readings); j++ {
			out = append(out, Pairwise(readings[i], readings[j], eps))
		}
	}
	return out
}

func deriveSensorAlerts(readings []model.TypedReading, optional func(string) bool) []SensorAlert {
	alerts := make([]SensorAlert, 0, len(readings))
	for _, r := range readings {
		sa := SensorAlert{SensorID: r.SensorID, Optional: optional(r.SensorID)}
		switch r.Value.Kind() {
		case algebra.KindAbsZero:
			sa.ValueKind, sa.Alert = "0_bm", SensorOffline
		case algebra.KindMeasZero:
			sa.ValueKind, sa.Alert = "0_m", SensorDegraded
		default:
			sa.ValueKind, sa.Alert = "Real", SensorOK
		}
		alerts = append(alerts, sa)
	}
	return alerts
}

// Params configures one fuse call.
type Params struct {
	RequiredEligible int
	AgreeEps         float64
	MaxDisagree      int
	Optional         func(sensorID string) bool
}

func notOptional(string) bool { return false }

// Fuse combines a group of readings into a fused value and a group mode.
//
// Mode priority, first match wins:
//  1. eligible < required                        -> FAILOVER (pairwise skipped)
//  2. fused value inapplicable                   -> FAILOVER
//  3. required-only pair disagreement over limit -> INCONSISTENT
//  4. fused value indeterminate                  -> DEGRADED
//  5. required sensor degraded                   -> DEGRADED
//  6. required-only pair indeterminate/resolved  -> DEGRADED
//  7. required sensor offline                    -> REDUCED
//  8. semi-required pair disagreement over limit -> INCONSISTENT
//
// Optional sensors going offline or indeterminate never degrade or reduce
// the group on their own; they only surface through the semi-required
// disagreement check.
func Fuse(readings []model.TypedReading, p Params) Result {
	optional := p.Optional
	if optional == nil {
		optional = notOptional
	}

	values := make([]algebra.Value, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}

	eligible := algebra.Count(values)
	total := len(values)
	definite := 0
	for _, v := range values {
		if v.Definite() {
			definite++
		}
	}

	res := Result{
		FusedValue:    algebra.Avg(values),
		FusedSum:      algebra.Sum(values),
		EligibleCount: eligible,
		TotalCount:    total,
		DefiniteCount: definite,
		SensorAlerts:  deriveSensorAlerts(readings, optional),
	}
	if total > 0 {
		res.Confidence = float64(eligible) / float64(total)
		res.Redundancy = res.Confidence
	}

	if eligible < p.RequiredEligible {
		res.Mode = model.ModeFailover
		res.Reasons = append(res.Reasons, fmt.Sprintf("INSUFFICIENT_ELIGIBLE(%d/%d)", eligible, p.RequiredEligible))
		return res
	}

	res.Pairwise = AllPairwise(readings, p.AgreeEps)

	var (
		requiredDisagree      int
		semiDisagree          int
		requiredIndeterminate int
	)
	for _, pr := range res.Pairwise {
		optA, optB := optional(pr.SensorA), optional(pr.SensorB)
		if !optA && !optB {
			switch pr.Agreement {
			case Disagree:
				requiredDisagree++
			case Indeterminate, Resolved:
				requiredIndeterminate++
			}
		}
		if (!optA || !optB) && pr.Agreement == Disagree {
			semiDisagree++
		}
	}

	var requiredOffline, requiredDegraded []string
	for _, sa := range res.SensorAlerts {
		if sa.Optional {
			continue
		}
		switch sa.Alert {
		case SensorOffline:
			requiredOffline = append(requiredOffline, sa.SensorID)
		case SensorDegraded:
			requiredDegraded = append(requiredDegraded, sa.SensorID)
		}
	}

	switch {
	case res.FusedValue.Kind() == algebra.KindAbsZero:
		res.Mode = model.ModeFailover
		res.Reasons = append(res.Reasons, "FUSED_VALUE_INAPPLICABLE")
	case requiredDisagree > p.MaxDisagree:
		res.Mode = model.ModeInconsistent
		res.Reasons = append(res.Reasons, fmt.Sprintf("REQUIRED_DISAGREE(%d)", requiredDisagree))
	case res.FusedValue.Kind() == algebra.KindMeasZero:
		res.Mode = model.ModeDegraded
		res.Reasons = append(res.Reasons, "FUSED_VALUE_INDETERMINATE")
	case len(requiredDegraded) > 0:
		res.Mode = model.ModeDegraded
		res.Reasons = append(res.Reasons, fmt.Sprintf("REQUIRED_SENSOR_DEGRADED(%s)", strings.Join(requiredDegraded, ",")))
	case requiredIndeterminate > 0:
		res.Mode = model.ModeDegraded
		res.Reasons = append(res.Reasons, fmt.Sprintf("REQUIRED_INDETERMINATE_PAIRS(%d)", requiredIndeterminate))
	case len(requiredOffline) > 0:
		res.Mode = model.ModeReduced
		res.Reasons = append(res.Reasons, fmt.Sprintf("REQUIRED_SENSOR_OFFLINE(%s)", strings.Join(requiredOffline, ",")))
	case semiDisagree > p.MaxDisagree:
		res.Mode = model.ModeInconsistent
		res.Reasons = append(res.Reasons, fmt.Sprintf("SEMI_REQUIRED_DISAGREE(%d)", semiDisagree))
	default:
		res.Mode = model.ModeOK
	}
	return res
}

// WeightedFuse combines readings by weight. Weights of inapplicable inputs
// are dropped from the denominator, not zeroed into it.
func WeightedFuse(readings []model.TypedReading, weights []float64) algebra.Value {
	if len(readings) != len(weights) {
		return algebra.AbsZero()
	}
	totalWeight := 0.0
	sum := algebra.AbsZero()
	for i, r := range readings {
		sum = sum.Add(algebra.Real(weights[i]).Mul(r.Value))
		if r.Value.Eligible() {
			totalWeight += weights[i]
		}
	}
	if totalWeight == 0 {
		return algebra.AbsZero()
	}
	return sum.Div(algebra.Real(totalWeight))
}

// TemporalFuse is an exponential blend of the current and previous value.
// Algebra precedence applies: indeterminacy never overwrites a known
// previous value, and inapplicability is fully transparent.
func TemporalFuse(current, previous algebra.Value, alpha float64) algebra.Value {
	wc := algebra.Real(alpha).Mul(current)
	wp := algebra.Real(1.0 - alpha).Mul(previous)
	return wc.Add(wp)
}

// GroupResult is one group's fused outcome for a tick.
type GroupResult struct {
	Group  string
	Result Result
}

// DecideGroup resolves a GroupSpec against the latest readings by sensor id.
// Sensors with no reading at all are simply absent from the fusion input.
func DecideGroup(group model.GroupSpec, bySensor map[string]model.TypedReading) GroupResult {
	var readings []model.TypedReading
	for _, sid := range group.Sensors {
		if tr, ok := bySensor[sid]; ok {
			readings = append(readings, tr)
		}
	}
	return GroupResult{
		Group: group.Name,
		Result: Fuse(readings, Params{
			RequiredEligible: group.RequiredEligible,
			AgreeEps:         group.AgreeEps,
			MaxDisagree:      group.MaxOutliers,
			Optional:         group.Optional,
		}),
	}
}

// SystemResult is the worst-mode rollup across all groups.
type SystemResult struct {
	SystemMode model.Mode
	Groups     []GroupResult
}

// DecideSystem fuses every group and reports the worst mode across them.
func DecideSystem(groups []model.GroupSpec, bySensor map[string]model.TypedReading) SystemResult {
	out := SystemResult{SystemMode: model.ModeOK}
	for _, g := range groups {
		gr := DecideGroup(g, bySensor)
		out.Groups = append(out.Groups, gr)
		if gr.Result.Mode.Rank() > out.SystemMode.Rank() {
			out.SystemMode = gr.Result.Mode
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
