package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"sensorfuse/internal/alerting"
	"sensorfuse/internal/status"
)

type sqliteStore struct {
	baseStore
}

func newSQLiteStore(dsn string) (*sqliteStore, error) {
	if dsn == "" {
		dsn = "file:sensorfuse.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS alert_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			building_id INTEGER NOT NULL,
			fault_key TEXT NOT NULL,
			subsystem TEXT NOT NULL,
			subsystem_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			stored_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_building ON alert_events(building_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_key ON alert_events(fault_key)`,
		`CREATE TABLE IF NOT EXISTS status_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			building_id INTEGER NOT NULL,
			ts TIMESTAMP NOT NULL,
			system_mode TEXT NOT NULL,
			groups TEXT NOT NULL,
			pair_tick TEXT NOT NULL,
			faults TEXT NOT NULL,
			stored_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_building_ts ON status_snapshots(building_id, ts)`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("storage: init sqlite: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) SaveAlertEvent(ctx context.Context, ev alerting.AlertEvent) error {
	details, err := encodeJSON(ev.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_events
			(event_id, building_id, fault_key, subsystem, subsystem_name,
			 severity, title, message, details, created_at, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.BuildingID, ev.FaultKey, ev.Subsystem, ev.SubsystemName,
		string(ev.Severity), ev.Title, ev.Message, string(details),
		ev.CreatedAt.UTC(), nowUTC())
	if err != nil {
		return fmt.Errorf("storage: save alert event: %w", err)
	}
	return nil
}

func (s *sqliteStore) SaveSnapshot(ctx context.Context, snap status.Snapshot) error {
	groups, err := encodeJSON(snap.Groups)
	if err != nil {
		return err
	}
	tick, err := encodeJSON(snap.PairTick)
	if err != nil {
		return err
	}
	faults, err := encodeJSON(snap.Faults)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO status_snapshots
			(building_id, ts, system_mode, groups, pair_tick, faults, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.BuildingID, snap.Timestamp.UTC(), string(snap.SystemMode),
		string(groups), string(tick), string(faults), nowUTC())
	if err != nil {
		return fmt.Errorf("storage: save snapshot: %w", err)
	}
	return nil
}
