// Package storage provides optional persistence for alert events and
// per-building status snapshots.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sensorfuse/internal/alerting"
	"sensorfuse/internal/config"
	"sensorfuse/internal/status"
)

// Store persists alert events and group status snapshots.
type Store interface {
	// Init creates the schema if it does not exist.
	Init(ctx context.Context) error

	// SaveAlertEvent persists a confirmed or cleared alert event.
	SaveAlertEvent(ctx context.Context, ev alerting.AlertEvent) error

	// SaveSnapshot persists the latest per-building status snapshot.
	SaveSnapshot(ctx context.Context, snap status.Snapshot) error

	// Close releases the underlying database handle.
	Close() error
}

// NewStore builds a store from config. Returns (nil, nil) when storage
// is disabled; callers must nil-check before use.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Driver {
	case "sqlite":
		return newSQLiteStore(cfg.DSN)
	case "postgres":
		return newPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (s *baseStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: encode: %w", err)
	}
	return b, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
