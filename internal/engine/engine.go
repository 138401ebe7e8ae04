// Package engine runs the per-building analysis pipeline: classify the
// incoming readings, fuse each sensor group, debounce the group modes,
// check sensor pairs, aggregate faults across subsystems and confirm
// alerts.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sensorfuse/internal/alerting"
	"sensorfuse/internal/alerts"
	"sensorfuse/internal/algebra"
	"sensorfuse/internal/classify"
	"sensorfuse/internal/config"
	"sensorfuse/internal/faults"
	"sensorfuse/internal/fusion"
	"sensorfuse/internal/model"
	"sensorfuse/internal/pairs"
	"sensorfuse/internal/status"
	"sensorfuse/internal/storage"
	"sensorfuse/internal/window"
)

type Engine struct {
	logger     *slog.Logger
	statuses   *status.Store
	alertsLog  *alerts.Store
	store      storage.Store
	cfg        atomic.Value
	aggregator atomic.Value
	alerter    *alerting.Engine

	mu        sync.Mutex
	buildings map[int64]*buildingState
	started   time.Time
}

// buildingState holds everything that survives between ticks for one
// building: last known readings, debounce history and smoothed values.
type buildingState struct {
	decider  *window.Decider
	last     map[string]model.TypedReading
	smoothed map[string]algebra.Value
}

func NewEngine(cfg *config.Config, logger *slog.Logger, statusStore *status.Store, alertsStore *alerts.Store, store storage.Store) *Engine {
	e := &Engine{
		logger:    logger,
		statuses:  statusStore,
		alertsLog: alertsStore,
		store:     store,
		buildings: make(map[int64]*buildingState),
		started:   time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	e.aggregator.Store(buildAggregator(cfg))
	e.alerter = alerting.NewEngine(alerting.Params{
		ConfirmAfter: cfg.Analysis.Alerting.ConfirmAfter,
		ClearAfter:   cfg.Analysis.Alerting.ClearAfter,
		Cooldown:     cfg.Analysis.Alerting.Cooldown,
	})
	return e
}

func buildAggregator(cfg *config.Config) *faults.Aggregator {
	if len(cfg.Analysis.Subsystems) > 0 {
		return faults.NewAggregator(faults.NewRegistry(cfg.Analysis.Subsystems), nil)
	}
	return faults.NewAggregator(nil, nil)
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.aggregator.Store(buildAggregator(cfg))
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) Started() time.Time { return e.started }

func (e *Engine) Alerter() *alerting.Engine { return e.alerter }

// Start consumes batches until the context is cancelled.
func (e *Engine) Start(ctx context.Context, in <-chan model.ReadingBatch) {
	go func() {
		for {
			select {
			case batch := <-in:
				e.ProcessBatch(batch)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessBatch runs one full analysis tick for a building and returns
// the resulting snapshot.
func (e *Engine) ProcessBatch(batch model.ReadingBatch) status.Snapshot {
	cfg := e.config()
	a := &cfg.Analysis
	ts := batch.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	bs := e.getBuilding(batch.BuildingID, a)

	// Current tick as a raw row for the pair checks, plus classified
	// readings merged into the last-known state.
	row := make(map[string]*float64, len(batch.Readings))
	source := batch.Source
	if source == "" {
		source = "ingest"
	}
	for _, r := range batch.Readings {
		row[r.Point] = r.Value
		bs.last[r.Point] = classify.Classify(r.Point, r.Value, ts, source, e.limitsFor(a, r.Point))
	}

	bySensor := e.effectiveReadings(bs, a, ts)

	groups := make([]status.GroupStatus, 0, len(a.Groups))
	systemMode := model.ModeOK
	for _, g := range a.Groups {
		gr := fusion.DecideGroup(g, bySensor)
		fused := gr.Result.FusedValue
		if a.TemporalSmooth && fused.Definite() {
			if prev, ok := bs.smoothed[g.Name]; ok {
				fused = fusion.TemporalFuse(fused, prev, a.TemporalAlpha)
			}
			bs.smoothed[g.Name] = fused
		}
		stable := bs.decider.Update(g.Name, gr.Result.Mode)
		if stable.Rank() > systemMode.Rank() {
			systemMode = stable
		}
		groups = append(groups, groupStatus(g.Name, gr.Result, fused, stable))
	}

	tick := pairs.AnalyzeTick(row, a.Pairs, ts)
	summary := e.aggregator.Load().(*faults.Aggregator).Aggregate(tick.Pairs)

	events := e.alerter.Update(batch.BuildingID, summary.SubsystemFaults, ts)
	for _, ev := range events {
		e.alertsLog.Add(ev)
		if e.logger != nil {
			e.logger.Warn("alert event",
				"building_id", ev.BuildingID,
				"subsystem", ev.Subsystem,
				"severity", ev.Severity,
				"title", ev.Title,
			)
		}
		if e.store != nil {
			_ = e.store.SaveAlertEvent(context.Background(), ev)
		}
	}

	snap := status.Snapshot{
		BuildingID: batch.BuildingID,
		Timestamp:  ts,
		SystemMode: systemMode,
		Groups:     groups,
		PairTick:   tick,
		Faults:     summary,
	}
	e.statuses.Update(snap)
	if e.store != nil {
		_ = e.store.SaveSnapshot(context.Background(), snap)
	}
	return snap
}

func groupStatus(name string, res fusion.Result, fused algebra.Value, stable model.Mode) status.GroupStatus {
	gs := status.GroupStatus{
		Group:         name,
		RawMode:       res.Mode,
		StableMode:    stable,
		FusedKind:     fused.String(),
		EligibleCount: res.EligibleCount,
		TotalCount:    res.TotalCount,
		DefiniteCount: res.DefiniteCount,
		Confidence:    res.Confidence,
		Redundancy:    res.Redundancy,
		Reasons:       res.Reasons,
		Pairwise:      res.Pairwise,
		SensorAlerts:  res.SensorAlerts,
	}
	if v, ok := fused.Float(); ok {
		gs.FusedValue = &v
	}
	return gs
}

func (e *Engine) limitsFor(a *config.AnalysisConfig, point string) classify.Limits {
	if lim, ok := a.SensorLimits[point]; ok {
		return lim
	}
	return classify.Limits{NoiseFloor: a.DefaultNoise}
}

// effectiveReadings returns the last known reading per sensor, with
// anything older than the staleness cutoff downgraded to missing.
func (e *Engine) effectiveReadings(bs *buildingState, a *config.AnalysisConfig, now time.Time) map[string]model.TypedReading {
	cutoff := now.Add(-a.StaleAfter)
	out := make(map[string]model.TypedReading, len(bs.last))
	for sid, tr := range bs.last {
		if tr.Timestamp.Before(cutoff) {
			out[sid] = classify.Classify(sid, nil, tr.Timestamp, "stale", classify.Limits{})
			continue
		}
		out[sid] = tr
	}
	return out
}

func (e *Engine) getBuilding(id int64, a *config.AnalysisConfig) *buildingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bs, ok := e.buildings[id]; ok {
		return bs
	}
	bs := &buildingState{
		decider:  window.NewDecider(a.Window),
		last:     make(map[string]model.TypedReading),
		smoothed: make(map[string]algebra.Value),
	}
	e.buildings[id] = bs
	return bs
}

// Reset drops all per-building state. Alert streaks restart from zero.
func (e *Engine) Reset() {
	e.mu.Lock()
	ids := make([]int64, 0, len(e.buildings))
	for id := range e.buildings {
		ids = append(ids, id)
	}
	e.buildings = make(map[int64]*buildingState)
	e.mu.Unlock()
	for _, id := range ids {
		e.alerter.Reset(id)
	}
}
