// Package faults groups pair-level fault records by subsystem and separates
// root causes from cascade effects, via explicit causal rules first and
// dependency-graph topology as fallback.
package faults

import (
	"fmt"
	"sort"
	"strings"

	"sensorfuse/internal/model"
)

// Fault classification relative to the other faulting subsystems.
type FaultType string

const (
	RootCause   FaultType = "root_cause"
	Cascade     FaultType = "cascade"
	Independent FaultType = "independent"
)

// Subsystem describes one logical subsystem and its immediate upstream
// dependencies. Lower priority means more upstream.
type Subsystem struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Priority   int      `json:"priority" yaml:"priority"`
	Groups     []string `json:"groups" yaml:"groups"`
	Indicators []string `json:"indicators" yaml:"indicators"`
	Upstream   []string `json:"upstream,omitempty" yaml:"upstream"`
}

// Registry is an ordered set of subsystems. Order matters for indicator
// matching: the first subsystem whose group or indicator matches wins.
type Registry struct {
	subsystems []Subsystem
	byID       map[string]Subsystem
	downstream map[string][]string
}

// NewRegistry builds a registry, precomputing the reverse (downstream) map.
func NewRegistry(subsystems []Subsystem) *Registry {
	r := &Registry{
		subsystems: subsystems,
		byID:       make(map[string]Subsystem, len(subsystems)),
		downstream: make(map[string][]string),
	}
	for _, s := range subsystems {
		r.byID[s.ID] = s
	}
	for _, s := range subsystems {
		for _, up := range s.Upstream {
			r.downstream[up] = append(r.downstream[up], s.ID)
		}
	}
	return r
}

func (r *Registry) priority(id string) int {
	if s, ok := r.byID[id]; ok {
		return s.Priority
	}
	return 99
}

func (r *Registry) displayName(id string) string {
	if s, ok := r.byID[id]; ok {
		return s.Name
	}
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}

// DefaultRegistry covers the stock HVAC subsystems plus the generic
// instrument groups.
func DefaultRegistry() *Registry {
	return NewRegistry([]Subsystem{
		{ID: "valve", Name: "Valve/Actuator", Priority: 1,
			Groups:     []string{"valve", "chw", "damper"},
			Indicators: []string{"VLV", "VALVE", "DMPR", "DAMPER", "CMD", "POS"}},
		{ID: "sat", Name: "Supply Air Temperature", Priority: 2,
			Groups:     []string{"sat"},
			Indicators: []string{"SAT", "SA-TEMP", "SA_TEMP", "SUPPLY"},
			Upstream:   []string{"valve"}},
		{ID: "vav", Name: "VAV Box", Priority: 3,
			Groups:     []string{"vav"},
			Indicators: []string{"VAV", "BOX", "TERMINAL"},
			Upstream:   []string{"sat"}},
		{ID: "chw", Name: "Chilled Water", Priority: 2,
			Groups:     []string{"chw"},
			Indicators: []string{"CHW", "CHWC", "CHILLER"},
			Upstream:   []string{"valve"}},
		{ID: "zone", Name: "Zone Comfort", Priority: 4,
			Groups:     []string{"zone"},
			Indicators: []string{"RM-TEMP", "RM_TEMP", "ROOM", "ZONE", "RMCLG", "RMHTG"},
			Upstream:   []string{"sat", "vav", "chw"}},
		{ID: "imu", Name: "IMU Sensors", Priority: 1,
			Groups:     []string{"imu", "custom"},
			Indicators: []string{"IMU", "ACC", "GYR"}},
		{ID: "baro", Name: "Barometer", Priority: 1,
			Groups:     []string{"baro"},
			Indicators: []string{"BARO", "ALT", "PRESS"}},
		{ID: "gps", Name: "GPS", Priority: 1,
			Groups:     []string{"gps"},
			Indicators: []string{"GPS", "LAT", "LNG", "SPD"}},
	})
}

// Identify maps a fault record to a subsystem id via group match first, then
// indicator substrings against the upper-cased name and column names. Falls
// back to "other" so misconfiguration never errors.
func (r *Registry) Identify(f model.PairFault) string {
	group := strings.ToLower(f.Group)
	name := strings.ToUpper(f.Name)
	colA := strings.ToUpper(f.ColA)
	colB := strings.ToUpper(f.ColB)

	for _, s := range r.subsystems {
		for _, g := range s.Groups {
			if group == g {
				return s.ID
			}
		}
		for _, ind := range s.Indicators {
			if strings.Contains(name, ind) || strings.Contains(colA, ind) || strings.Contains(colB, ind) {
				return s.ID
			}
		}
	}
	return "other"
}

// Rule is one explicit causal rule. Rules are evaluated in table order and
// take precedence over topology inference.
type Rule struct {
	Name      string
	Condition func(faults []ClassifiedFault) bool
	Root      string
	Cascades  []string
	Message   string
}

// ClassifiedFault is a pair fault annotated with its subsystem.
type ClassifiedFault struct {
	model.PairFault
	Subsystem    string `json:"subsystem"`
	HumanMessage string `json:"human_message"`
}

func anyFault(faults []ClassifiedFault, subsystem string) bool {
	for _, f := range faults {
		if f.Subsystem == subsystem && f.Status == model.PairStatusFault {
			return true
		}
	}
	return false
}

// DefaultRules is the stock causal rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "valve_causes_sat",
			Condition: func(fs []ClassifiedFault) bool {
				return anyFault(fs, "valve") && anyFault(fs, "sat")
			},
			Root:     "valve",
			Cascades: []string{"sat"},
			Message:  "Supply Air Temperature deviation due to valve mismatch",
		},
		{
			Name: "sat_causes_zone",
			Condition: func(fs []ClassifiedFault) bool {
				return anyFault(fs, "sat") && anyFault(fs, "zone")
			},
			Root:     "sat",
			Cascades: []string{"zone"},
			Message:  "Zone comfort deviation due to Supply Air Temperature fault",
		},
		{
			Name: "valve_causes_zone",
			Condition: func(fs []ClassifiedFault) bool {
				return anyFault(fs, "valve") && anyFault(fs, "zone") && !anyFault(fs, "sat")
			},
			Root:     "valve",
			Cascades: []string{"zone"},
			Message:  "Zone comfort deviation due to valve actuator fault",
		},
		{
			Name: "chw_causes_sat",
			Condition: func(fs []ClassifiedFault) bool {
				return anyFault(fs, "chw") && anyFault(fs, "sat")
			},
			Root:     "chw",
			Cascades: []string{"sat"},
			Message:  "Supply Air Temperature deviation due to chilled water fault",
		},
	}
}

// AggregatedFault is one subsystem's rolled-up fault for a cycle. For
// cascades, DetailsMessage preserves the subsystem's own fault description
// after Message has been replaced by the causal explanation; it is empty
// for root causes and independents.
type AggregatedFault struct {
	Subsystem      string            `json:"subsystem"`
	SubsystemName  string            `json:"subsystem_name"`
	FaultType      FaultType         `json:"fault_type"`
	Severity       model.Severity    `json:"severity"`
	PrimaryFault   ClassifiedFault   `json:"primary_fault"`
	Cascades       []ClassifiedFault `json:"cascades,omitempty"`
	Message        string            `json:"message"`
	DetailsMessage string            `json:"details_message"`
	RuleApplied    string            `json:"rule_applied,omitempty"`
}

// Summary is the full aggregation result for one cycle.
type Summary struct {
	SubsystemFaults []AggregatedFault `json:"subsystem_faults"`
	TotalFaults     int               `json:"total_faults"`
	RootCauses      int               `json:"root_causes"`
	Cascades        int               `json:"cascades"`
	Independent     int               `json:"independent"`
	BySeverity      map[string]int    `json:"by_severity"`
}

// Aggregator classifies per-cycle fault sets against a subsystem registry
// and rule table. Stateless between calls; safe for concurrent use.
type Aggregator struct {
	registry *Registry
	rules    []Rule
}

// NewAggregator builds an aggregator; nil registry or rules fall back to
// the defaults.
func NewAggregator(registry *Registry, rules []Rule) *Aggregator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if rules == nil {
		rules = DefaultRules()
	}
	return &Aggregator{registry: registry, rules: rules}
}

// faultyUpstreams walks the upstream relation iteratively and returns the
// distinct faulting ancestors ordered by priority. The visited set makes
// cyclic configuration terminate.
func (a *Aggregator) faultyUpstreams(id string, faulty map[string]bool) []string {
	visited := map[string]bool{}
	found := map[string]bool{}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, up := range a.registry.byID[cur].Upstream {
			if faulty[up] {
				found[up] = true
			}
			stack = append(stack, up)
		}
	}
	out := make([]string, 0, len(found))
	for u := range found {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := a.registry.priority(out[i]), a.registry.priority(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

// hasFaultyDownstream checks the transitive downstream set, cycle-safe.
func (a *Aggregator) hasFaultyDownstream(id string, faulty map[string]bool) bool {
	visited := map[string]bool{id: true}
	stack := append([]string(nil), a.registry.downstream[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if faulty[cur] {
			return true
		}
		stack = append(stack, a.registry.downstream[cur]...)
	}
	return false
}

// Aggregate rolls a cycle's pair results into per-subsystem faults with
// root-cause analysis. Non-FAULT records are ignored.
func (a *Aggregator) Aggregate(pairResults []model.PairFault) Summary {
	var faults []ClassifiedFault
	for _, p := range pairResults {
		if p.Status != model.PairStatusFault {
			continue
		}
		cf := ClassifiedFault{PairFault: p}
		cf.Subsystem = a.registry.Identify(p)
		cf.HumanMessage = HumanMessage(p, cf.Subsystem)
		faults = append(faults, cf)
	}

	summary := Summary{BySeverity: map[string]int{}}
	if len(faults) == 0 {
		return summary
	}
	summary.TotalFaults = len(faults)

	// Group by subsystem, preserving first-seen order for determinism.
	var order []string
	bySubsystem := map[string][]ClassifiedFault{}
	faulty := map[string]bool{}
	for _, f := range faults {
		if !faulty[f.Subsystem] {
			order = append(order, f.Subsystem)
			faulty[f.Subsystem] = true
		}
		bySubsystem[f.Subsystem] = append(bySubsystem[f.Subsystem], f)
	}

	// Rules first; first match per subsystem wins via the applied map.
	roots := map[string]bool{}
	cascades := map[string]bool{}
	appliedRule := map[string]Rule{}
	for _, rule := range a.rules {
		if !rule.Condition(faults) {
			continue
		}
		roots[rule.Root] = true
		for _, c := range rule.Cascades {
			cascades[c] = true
			if _, ok := appliedRule[c]; !ok {
				appliedRule[c] = rule
			}
		}
	}

	for _, id := range order {
		sf := bySubsystem[id]
		agg := AggregatedFault{
			Subsystem:     id,
			SubsystemName: a.registry.displayName(id),
			PrimaryFault:  sf[0],
		}
		if len(sf) > 1 {
			agg.Cascades = sf[1:]
		}

		switch {
		case roots[id]:
			agg.FaultType = RootCause
			agg.Severity = model.SeverityFault
			agg.Message = sf[0].HumanMessage
		case cascades[id]:
			agg.FaultType = Cascade
			agg.Severity = model.SeverityCascade
			rule := appliedRule[id]
			agg.Message = rule.Message
			agg.DetailsMessage = sf[0].HumanMessage
			agg.RuleApplied = rule.Name
		default:
			if ups := a.faultyUpstreams(id, faulty); len(ups) > 0 {
				agg.FaultType = Cascade
				agg.Severity = model.SeverityCascade
				names := make([]string, len(ups))
				for i, u := range ups {
					names[i] = a.registry.displayName(u)
				}
				agg.Message = "Likely downstream effect. Investigate upstream first: " + strings.Join(names, ", ")
				agg.DetailsMessage = sf[0].HumanMessage
			} else if a.hasFaultyDownstream(id, faulty) {
				agg.FaultType = RootCause
				agg.Severity = model.SeverityFault
				agg.Message = sf[0].HumanMessage
			} else {
				agg.FaultType = Independent
				agg.Severity = model.SeverityFault
				agg.Message = sf[0].HumanMessage
			}
		}
		summary.SubsystemFaults = append(summary.SubsystemFaults, agg)
	}

	tier := func(t FaultType) int {
		switch t {
		case RootCause:
			return 0
		case Independent:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(summary.SubsystemFaults, func(i, j int) bool {
		fi, fj := summary.SubsystemFaults[i], summary.SubsystemFaults[j]
		if ti, tj := tier(fi.FaultType), tier(fj.FaultType); ti != tj {
			return ti < tj
		}
		return a.registry.priority(fi.Subsystem) < a.registry.priority(fj.Subsystem)
	})

	for _, agg := range summary.SubsystemFaults {
		summary.BySeverity[string(agg.Severity)]++
		switch agg.FaultType {
		case RootCause:
			summary.RootCauses++
		case Cascade:
			summary.Cascades++
		case Independent:
			summary.Independent++
		}
	}
	return summary
}

// HumanMessage renders a fault record for operators.
func HumanMessage(f model.PairFault, subsystem string) string {
	name := f.Name
	if name == "" {
		name = "Unknown"
	}
	if f.Status != model.PairStatusFault {
		return fmt.Sprintf("%s: %s", name, f.Status)
	}
	if f.ValA == nil || f.ValB == nil {
		return fmt.Sprintf("%s: Sensor data missing", name)
	}
	valA, valB := *f.ValA, *f.ValB
	delta := valA - valB
	if delta < 0 {
		delta = -delta
	}

	if f.PairType == "cmd_pos" {
		switch {
		case valA > 90 && valB < 10:
			return fmt.Sprintf("%s stuck closed (commanding %.0f%% but at %.0f%%)", name, valA, valB)
		case valA < 10 && valB > 90:
			return fmt.Sprintf("%s stuck open (commanding %.0f%% but at %.0f%%)", name, valA, valB)
		default:
			return fmt.Sprintf("%s not following command (%.0f%% cmd vs %.0f%% actual)", name, valA, valB)
		}
	}

	switch subsystem {
	case "sat":
		if valB > valA {
			return fmt.Sprintf("Supply air too warm (%.1f%s vs setpoint %.1f%s)", valB, f.Unit, valA, f.Unit)
		}
		return fmt.Sprintf("Supply air too cold (%.1f%s vs setpoint %.1f%s)", valB, f.Unit, valA, f.Unit)
	case "zone":
		if valB > valA {
			return fmt.Sprintf("Zone overheating (%.1f%s vs setpoint %.1f%s)", valB, f.Unit, valA, f.Unit)
		}
		return fmt.Sprintf("Zone too cold (%.1f%s vs setpoint %.1f%s)", valB, f.Unit, valA, f.Unit)
	}
	return fmt.Sprintf("%s: deviation of %.1f%s", name, delta, f.Unit)
}
