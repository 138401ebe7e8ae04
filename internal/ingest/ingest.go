// Package ingest receives reading batches over REST and Kafka and fans
// them into a single channel consumed by the analysis engine.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sensorfuse/internal/model"
)

// SendNonBlocking forwards a batch without blocking the ingest path.
// Drops and logs when the channel is full.
func SendNonBlocking(ctx context.Context, out chan<- model.ReadingBatch, batch model.ReadingBatch, logger *slog.Logger) bool {
	select {
	case out <- batch:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("batch channel full, dropping batch", "building_id", batch.BuildingID, "timestamp", batch.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// DedupeCache suppresses re-delivered batches inside a TTL window.
// Both transports can deliver the same tick when producers retry.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

// BatchKey identifies a batch by building and tick timestamp.
func BatchKey(batch model.ReadingBatch) string {
	return fmt.Sprintf("%d@%s", batch.BuildingID, batch.Timestamp.UTC().Format(time.RFC3339Nano))
}

func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok {
		if now.Sub(ts) <= ttl {
			return true
		}
	}
	d.items[key] = now
	if len(d.items) > 10000 {
		d.compact(now, ttl)
	}
	return false
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for k, ts := range d.items {
		if now.Sub(ts) > ttl {
			delete(d.items, k)
		}
	}
}
