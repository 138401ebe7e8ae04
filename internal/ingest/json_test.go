package ingest

import (
	"testing"
	"time"

	"sensorfuse/internal/model"
)

func TestParseBatchStructured(t *testing.T) {
	data := []byte(`{"building_id": 7, "timestamp": "2025-03-01T12:00:00Z",
		"readings": [{"point": "sat_1", "value": 55.2}, {"point": "sat_2", "value": null}]}`)
	batch, err := ParseBatchBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if batch.BuildingID != 7 {
		t.Fatalf("building_id = %d", batch.BuildingID)
	}
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if !batch.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v", batch.Timestamp)
	}
	if len(batch.Readings) != 2 {
		t.Fatalf("readings = %d", len(batch.Readings))
	}
	if batch.Readings[0].Value == nil || *batch.Readings[0].Value != 55.2 {
		t.Fatalf("first value = %v", batch.Readings[0].Value)
	}
	if batch.Readings[1].Value != nil {
		t.Fatalf("null value should map to nil")
	}
}

func TestParseBatchPointsMap(t *testing.T) {
	data := []byte(`{"building_id": 3, "points": {"zone_temp": 72.5, "zone_setp": 71.0, "gone": null}}`)
	batch, err := ParseBatchBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(batch.Readings) != 3 {
		t.Fatalf("readings = %d", len(batch.Readings))
	}
	// points map is flattened in name order
	if batch.Readings[0].Point != "gone" || batch.Readings[0].Value != nil {
		t.Fatalf("first reading = %+v", batch.Readings[0])
	}
	if batch.Readings[2].Point != "zone_temp" || *batch.Readings[2].Value != 72.5 {
		t.Fatalf("last reading = %+v", batch.Readings[2])
	}
}

func TestParseBatchSpaceTimestamp(t *testing.T) {
	data := []byte(`{"building_id": 1, "timestamp": "2025-03-01 08:30:00", "points": {"sat": 54.0}}`)
	batch, err := ParseBatchBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if batch.Timestamp.Hour() != 8 || batch.Timestamp.Minute() != 30 {
		t.Fatalf("timestamp = %v", batch.Timestamp)
	}
}

func TestParseBatchRejects(t *testing.T) {
	cases := []string{
		`{"timestamp": "2025-03-01T00:00:00Z", "points": {"a": 1}}`,
		`{"building_id": 2}`,
		`{"building_id": 2, "timestamp": "yesterday", "points": {"a": 1}}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseBatchBytes([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestDedupeWindow(t *testing.T) {
	cache := NewDedupeCache()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := model.ReadingBatch{BuildingID: 5, Timestamp: now}
	key := BatchKey(batch)

	if cache.Seen(key, now, 30*time.Second) {
		t.Fatal("first delivery should not be seen")
	}
	if !cache.Seen(key, now.Add(10*time.Second), 30*time.Second) {
		t.Fatal("redelivery inside window should be seen")
	}
	if cache.Seen(key, now.Add(2*time.Minute), 30*time.Second) {
		t.Fatal("redelivery after window should pass")
	}

	other := model.ReadingBatch{BuildingID: 6, Timestamp: now}
	if BatchKey(other) == key {
		t.Fatal("keys must differ per building")
	}
}
