package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sensorfuse/internal/alerting"
	"sensorfuse/internal/status"
)

type postgresStore struct {
	baseStore
}

func newPostgresStore(dsn string) (*postgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: postgres requires a dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS alert_events (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			building_id BIGINT NOT NULL,
			fault_key TEXT NOT NULL,
			subsystem TEXT NOT NULL,
			subsystem_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			details JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			stored_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_building ON alert_events(building_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_key ON alert_events(fault_key)`,
		`CREATE TABLE IF NOT EXISTS status_snapshots (
			id BIGSERIAL PRIMARY KEY,
			building_id BIGINT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			system_mode TEXT NOT NULL,
			groups JSONB NOT NULL,
			pair_tick JSONB NOT NULL,
			faults JSONB NOT NULL,
			stored_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_building_ts ON status_snapshots(building_id, ts)`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("storage: init postgres: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) SaveAlertEvent(ctx context.Context, ev alerting.AlertEvent) error {
	details, err := encodeJSON(ev.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_events
			(event_id, building_id, fault_key, subsystem, subsystem_name,
			 severity, title, message, details, created_at, stored_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.BuildingID, ev.FaultKey, ev.Subsystem, ev.SubsystemName,
		string(ev.Severity), ev.Title, ev.Message, string(details),
		ev.CreatedAt.UTC(), nowUTC())
	if err != nil {
		return fmt.Errorf("storage: save alert event: %w", err)
	}
	return nil
}

func (s *postgresStore) SaveSnapshot(ctx context.Context, snap status.Snapshot) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.BuildingID, snap.Timestamp.UTC(), string(snap.SystemMode),
		string(groups), string(tick), string(faults), nowUTC())
	if err != nil {
		return fmt.Errorf("storage: save snapshot: %w", err)
	}
	return nil
}
