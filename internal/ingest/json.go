package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sensorfuse/internal/model"
)

// wireBatch is the accepted payload shape. Readings may arrive either
// as the structured list or as a flat points map from BAS exporters.
type wireBatch struct {
	BuildingID int64                `json:"building_id"`
	Timestamp  string               `json:"timestamp"`
	Readings   []model.PointReading `json:"readings"`
	Points     map[string]*float64  `json:"points"`
}

// ParseBatchBytes decodes one reading batch. Missing timestamps default
// to the receive time.
func ParseBatchBytes(data []byte) (*model.ReadingBatch, error) {
	var wire wireBatch
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return batchFromWire(wire)
}

func batchFromWire(wire wireBatch) (*model.ReadingBatch, error) {
	if wire.BuildingID <= 0 {
		return nil, fmt.Errorf("ingest: batch missing building_id")
	}
	batch := &model.ReadingBatch{
		BuildingID: wire.BuildingID,
		Timestamp:  time.Now().UTC(),
		Readings:   wire.Readings,
	}
	if wire.Timestamp != "" {
		ts, err := parseTimestamp(wire.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("ingest: bad timestamp %q: %w", wire.Timestamp, err)
		}
		batch.Timestamp = ts
	}
	if len(wire.Points) > 0 {
		names := make([]string, 0, len(wire.Points))
		for name := range wire.Points {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			batch.Readings = append(batch.Readings, model.PointReading{Point: name, Value: wire.Points[name]})
		}
	}
	if len(batch.Readings) == 0 {
		return nil, fmt.Errorf("ingest: batch has no readings")
	}
	return batch, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized layout")
}
