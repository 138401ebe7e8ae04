// Package alerts keeps a bounded in-memory ring of fired alert events for
// the API surface; durable history lives in storage.
package alerts

import (
	"sync"
	"time"

	"sensorfuse/internal/alerting"
)

type Store struct {
	mu    sync.RWMutex
	buf   []alerting.AlertEvent
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(ev alerting.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, ev)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = ev
}

// List returns the newest events, oldest first, capped at limit.
func (s *Store) List(limit int) []alerting.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]alerting.AlertEvent, 0, limit)
	for i := len(s.buf) - limit; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

// ListBuilding returns events for one building, oldest first.
func (s *Store) ListBuilding(buildingID int64, limit int) []alerting.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alerting.AlertEvent, 0)
	for _, ev := range s.buf {
		if ev.BuildingID == buildingID {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) Since(ts time.Time) []alerting.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alerting.AlertEvent, 0)
	for _, ev := range s.buf {
		if !ev.CreatedAt.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
