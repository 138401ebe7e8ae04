// Package classify maps raw point values into the algebra at the ingest
// boundary, so everything downstream operates on typed readings only.
package classify

import (
	"math"
	"strconv"
	"strings"
	"time"

	"sensorfuse/internal/algebra"
	"sensorfuse/internal/model"
)

// Limits holds the per-sensor bounds applied during classification.
type Limits struct {
	NoiseFloor float64  `json:"noise_floor,omitempty" yaml:"noise_floor"`
	RangeMin   *float64 `json:"range_min,omitempty" yaml:"range_min"`
	RangeMax   *float64 `json:"range_max,omitempty" yaml:"range_max"`
}

// Classify converts a raw optional numeric reading into a TypedReading.
//
//	nil or NaN            -> AbsZero  (offline / hardware fault)
//	|raw| below NoiseFloor -> MeasZero (sub-threshold)
//	outside Range bounds   -> MeasZero (present but out of range)
//	otherwise              -> Real(raw)
//
// Total: never fails.
func Classify(sensorID string, raw *float64, ts time.Time, source string, lim Limits) model.TypedReading {
	if raw == nil || math.IsNaN(*raw) {
		return model.TypedReading{SensorID: sensorID, Value: algebra.AbsZero(), Timestamp: ts, Source: source, Raw: raw}
	}
	v := *raw
	if math.Abs(v) < lim.NoiseFloor {
		return model.TypedReading{SensorID: sensorID, Value: algebra.MeasZero(), Timestamp: ts, Source: source, Raw: raw}
	}
	if lim.RangeMin != nil && v < *lim.RangeMin {
		return model.TypedReading{SensorID: sensorID, Value: algebra.MeasZero(), Timestamp: ts, Source: source, Raw: raw}
	}
	if lim.RangeMax != nil && v > *lim.RangeMax {
		return model.TypedReading{SensorID: sensorID, Value: algebra.MeasZero(), Timestamp: ts, Source: source, Raw: raw}
	}
	return model.TypedReading{SensorID: sensorID, Value: algebra.Real(v), Timestamp: ts, Source: source, Raw: raw}
}

// ClassifyField classifies a textual point value as exported by BAS systems.
// Empty or non-numeric text means the point was absent from the sample.
func ClassifyField(sensorID, raw string, ts time.Time, source string, lim Limits) model.TypedReading {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Classify(sensorID, nil, ts, source, lim)
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Classify(sensorID, nil, ts, source, lim)
	}
	return Classify(sensorID, &v, ts, source, lim)
}
