// Package status holds the latest analysis snapshot per building for the
// API surface.
package status

import (
	"sync"
	"time"

	"sensorfuse/internal/faults"
	"sensorfuse/internal/fusion"
	"sensorfuse/internal/model"
	"sensorfuse/internal/pairs"
)

// GroupStatus is the externally visible outcome for one group on one tick.
type GroupStatus struct {
	Group         string                  `json:"group"`
	RawMode       model.Mode              `json:"raw_mode"`
	StableMode    model.Mode              `json:"stable_mode"`
	FusedValue    *float64                `json:"fused_value"`
	FusedKind     string                  `json:"fused_kind"`
	EligibleCount int                     `json:"eligible_count"`
	TotalCount    int                     `json:"total_count"`
	DefiniteCount int                     `json:"definite_count"`
	Confidence    float64                 `json:"confidence"`
	Redundancy    float64                 `json:"redundancy"`
	Reasons       []string                `json:"reasons,omitempty"`
	Pairwise      []fusion.PairwiseResult `json:"pairwise,omitempty"`
	SensorAlerts  []fusion.SensorAlert    `json:"sensor_alerts,omitempty"`
}

// Snapshot is one building's full analysis state after a tick.
type Snapshot struct {
	BuildingID int64            `json:"building_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SystemMode model.Mode       `json:"system_mode"`
	Groups     []GroupStatus    `json:"groups"`
	PairTick   pairs.TickResult `json:"pair_tick"`
	Faults     faults.Summary   `json:"faults"`
}

type Store struct {
	mu         sync.RWMutex
	byBuilding map[int64]Snapshot
	updatedAt  map[int64]time.Time
	limit      int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byBuilding: make(map[int64]Snapshot),
		updatedAt:  make(map[int64]time.Time),
		limit:      limit,
	}
}

func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byBuilding[snap.BuildingID] = snap
	s.updatedAt[snap.BuildingID] = time.Now().UTC()
	if len(s.byBuilding) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(buildingID int64) (Snapshot, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byBuilding[buildingID]
	if !ok {
		return Snapshot{}, time.Time{}, false
	}
	return snap, s.updatedAt[buildingID], true
}

func (s *Store) GetAll() map[int64]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]Snapshot, len(s.byBuilding))
	for id, snap := range s.byBuilding {
		out[id] = snap
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestID int64
	var oldest time.Time
	first := true
	for id, ts := range s.updatedAt {
		if first || ts.Before(oldest) {
			oldestID = id
			oldest = ts
			first = false
		}
	}
	if !first {
		delete(s.byBuilding, oldestID)
		delete(s.updatedAt, oldestID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byBuilding = make(map[int64]Snapshot)
	s.updatedAt = make(map[int64]time.Time)
}
