package faults

import (
	"strings"
	"testing"

	"sensorfuse/internal/model"
)

func pf(group, name string, valA, valB float64) model.PairFault {
	return model.PairFault{
		Name:   name,
		Group:  group,
		Status: model.PairStatusFault,
		ValA:   &valA,
		ValB:   &valB,
		Unit:   "F",
	}
}

func bySubsystem(s Summary) map[string]AggregatedFault {
	m := make(map[string]AggregatedFault, len(s.SubsystemFaults))
	for _, f := range s.SubsystemFaults {
		m[f.Subsystem] = f
	}
	return m
}

func TestTopologyCascadeWithoutRule(t *testing.T) {
	// vav lists sat as upstream; no explicit rule covers sat->vav, so
	// topology inference must mark sat ROOT and vav CASCADE.
	agg := NewAggregator(nil, nil)
	sum := agg.Aggregate([]model.PairFault{
		pf("sat", "SA-TEMP", 55, 65),
		pf("vav", "VAV-01", 72, 80),
	})
	m := bySubsystem(sum)
	if m["sat"].FaultType != RootCause {
		t.Fatalf("sat = %s, want root_cause", m["sat"].FaultType)
	}
	if m["vav"].FaultType != Cascade {
		t.Fatalf("vav = %s, want cascade", m["vav"].FaultType)
	}
	if !strings.Contains(m["vav"].Message, "Investigate upstream first") ||
		!strings.Contains(m["vav"].Message, "Supply Air Temperature") {
		t.Fatalf("vav message = %q", m["vav"].Message)
	}
	if m["vav"].DetailsMessage == "" {
		t.Fatal("cascade details_message should carry the original message")
	}
	if m["sat"].DetailsMessage != "" {
		t.Fatal("root cause details_message should be empty")
	}
}

func TestCausalRuleOverridesTopology(t *testing.T) {
	agg := NewAggregator(nil, nil)
	sum := agg.Aggregate([]model.PairFault{
		pf("valve", "VLV-01", 95, 5),
		pf("sat", "SA-TEMP", 55, 65),
	})
	m := bySubsystem(sum)
	if m["valve"].FaultType != RootCause {
		t.Fatalf("valve = %s, want root_cause", m["valve"].FaultType)
	}
	if m["sat"].FaultType != Cascade {
		t.Fatalf("sat = %s, want cascade", m["sat"].FaultType)
	}
	if !strings.Contains(strings.ToLower(m["sat"].Message), "valve") {
		t.Fatalf("sat cascade message = %q, want the rule message", m["sat"].Message)
	}
	if m["sat"].RuleApplied != "valve_causes_sat" {
		t.Fatalf("rule applied = %q", m["sat"].RuleApplied)
	}
}

func TestUnrelatedSubsystemsAreIndependent(t *testing.T) {
	agg := NewAggregator(nil, nil)
	sum := agg.Aggregate([]model.PairFault{
		pf("imu", "IMU-ACC", 1, 2),
		pf("gps", "GPS-01", 1, 2),
	})
	m := bySubsystem(sum)
	if m["imu"].FaultType != Independent || m["gps"].FaultType != Independent {
		t.Fatalf("imu = %s, gps = %s, want independent", m["imu"].FaultType, m["gps"].FaultType)
	}
	if sum.RootCauses != 0 || sum.Cascades != 0 || sum.Independent != 2 {
		t.Fatalf("counts = %d/%d/%d", sum.RootCauses, sum.Cascades, sum.Independent)
	}
}

func TestCycleSafety(t *testing.T) {
	// A pure cycle must terminate and must not classify both ends as root.
	reg := NewRegistry([]Subsystem{
		{ID: "valve", Name: "Valve", Priority: 1, Groups: []string{"valve"}, Upstream: []string{"sat"}},
		{ID: "sat", Name: "SAT", Priority: 2, Groups: []string{"sat"}, Upstream: []string{"valve"}},
	})
	agg := NewAggregator(reg, []Rule{})
	sum := agg.Aggregate([]model.PairFault{
		pf("valve", "VLV-01", 95, 5),
		pf("sat", "SA-TEMP", 55, 65),
	})
	m := bySubsystem(sum)
	if m["valve"].FaultType == RootCause && m["sat"].FaultType == RootCause {
		t.Fatal("pure cycle classified both ends as root_cause")
	}
}

func TestDiamondDedup(t *testing.T) {
	// leaf reaches top via mid_a and via mid_b; the cascade message must
	// name each faulting ancestor exactly once, ordered by priority.
	reg := NewRegistry([]Subsystem{
		{ID: "top", Name: "Top", Priority: 1, Groups: []string{"top"}},
		{ID: "mid_a", Name: "MidA", Priority: 2, Groups: []string{"mid_a"}, Upstream: []string{"top"}},
		{ID: "mid_b", Name: "MidB", Priority: 2, Groups: []string{"mid_b"}, Upstream: []string{"top"}},
		{ID: "leaf", Name: "Leaf", Priority: 3, Groups: []string{"leaf"}, Upstream: []string{"mid_a", "mid_b"}},
	})
	agg := NewAggregator(reg, []Rule{})
	sum := agg.Aggregate([]model.PairFault{
		pf("top", "TOP-01", 1, 2),
		pf("mid_a", "MIDA-01", 1, 2),
		pf("mid_b", "MIDB-01", 1, 2),
		pf("leaf", "LEAF-01", 1, 2),
	})
	m := bySubsystem(sum)
	if m["leaf"].FaultType != Cascade {
		t.Fatalf("leaf = %s, want cascade", m["leaf"].FaultType)
	}
	msg := m["leaf"].Message
	for _, name := range []string{"Top", "MidA", "MidB"} {
		if strings.Count(msg, name) != 1 {
			t.Fatalf("%q should appear exactly once in %q", name, msg)
		}
	}
	if !strings.HasSuffix(msg, "Top, MidA, MidB") {
		t.Fatalf("ancestors not priority-ordered: %q", msg)
	}
}

func TestSortOrder(t *testing.T) {
	agg := NewAggregator(nil, nil)
	sum := agg.Aggregate([]model.PairFault{
		pf("zone", "ZONE-01", 72, 80),
		pf("gps", "GPS-01", 1, 2),
		pf("sat", "SA-TEMP", 55, 65),
	})
	// sat_causes_zone fires: sat root, zone cascade, gps independent.
	var types []FaultType
	for _, f := range sum.SubsystemFaults {
		types = append(types, f.FaultType)
	}
	want := []FaultType{RootCause, Independent, Cascade}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("order = %v, want %v", types, want)
		}
	}
}

func TestIdentifyByIndicator(t *testing.T) {
	reg := DefaultRegistry()
	cases := []struct {
		fault model.PairFault
		want  string
	}{
		{model.PairFault{Group: "sat"}, "sat"},
		{model.PairFault{Name: "AHU-1 VLV-2"}, "valve"},
		{model.PairFault{ColA: "RM-TEMP-301"}, "zone"},
		{model.PairFault{Name: "rm_temp_3", ColB: "RM_TEMP_3"}, "zone"},
		{model.PairFault{Name: "mystery"}, "other"},
	}
	for _, c := range cases {
		if got := reg.Identify(c.fault); got != c.want {
			t.Errorf("Identify(%+v) = %q, want %q", c.fault, got, c.want)
		}
	}
}

func TestHumanMessages(t *testing.T) {
	a, b := 95.0, 5.0
	f := model.PairFault{Name: "AHU-1 CHW Valve", Status: model.PairStatusFault, ValA: &a, ValB: &b, PairType: "cmd_pos"}
	if got := HumanMessage(f, "valve"); !strings.Contains(got, "stuck closed") {
		t.Fatalf("got %q", got)
	}
	a2, b2 := 5.0, 95.0
	f2 := model.PairFault{Name: "AHU-1 CHW Valve", Status: model.PairStatusFault, ValA: &a2, ValB: &b2, PairType: "cmd_pos"}
	if got := HumanMessage(f2, "valve"); !strings.Contains(got, "stuck open") {
		t.Fatalf("got %q", got)
	}
	sp, meas := 55.0, 65.0
	f3 := model.PairFault{Name: "SA-TEMP", Status: model.PairStatusFault, ValA: &sp, ValB: &meas, Unit: "F"}
	if got := HumanMessage(f3, "sat"); !strings.Contains(got, "too warm") {
		t.Fatalf("got %q", got)
	}
	f4 := model.PairFault{Name: "NO-DATA", Status: model.PairStatusFault}
	if got := HumanMessage(f4, "other"); !strings.Contains(got, "missing") {
		t.Fatalf("got %q", got)
	}
	f5 := model.PairFault{Name: "X", Status: model.PairStatusOffline}
	if got := HumanMessage(f5, "other"); got != "X: OFFLINE" {
		t.Fatalf("got %q", got)
	}
}
