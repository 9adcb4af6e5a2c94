package iotanomaly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// datasetWire is the JSON shape exchanged with dashboard clients:
//
//	{"timestamp": [...], "metrics": {"temperature": [...]}, "is_anomaly": [...], "anomaly_score": [...]}
//
// Missing numbers travel as null; flags may be booleans or 0/1.
type datasetWire struct {
	Timestamp    []json.RawMessage     `json:"timestamp"`
	Metrics      map[string][]*float64 `json:"metrics"`
	IsAnomaly    []json.RawMessage     `json:"is_anomaly"`
	AnomalyScore []*float64            `json:"anomaly_score"`
}

type datasetWireOut struct {
	Timestamp    []*string             `json:"timestamp"`
	Metrics      map[string][]*float64 `json:"metrics"`
	IsAnomaly    []bool                `json:"is_anomaly"`
	AnomalyScore []*float64            `json:"anomaly_score"`
}

// MarshalJSON encodes the dataset, writing NaN readings and zero timestamps as null.
func (d Dataset) MarshalJSON() ([]byte, error) {
	out := datasetWireOut{
		Timestamp:    make([]*string, len(d.Timestamps)),
		Metrics:      make(map[string][]*float64, len(d.Metrics)),
		IsAnomaly:    d.IsAnomaly,
		AnomalyScore: nullableFloats(d.AnomalyScore),
	}
	if out.IsAnomaly == nil {
		out.IsAnomaly = []bool{}
	}
	for i, ts := range d.Timestamps {
		if ts.IsZero() {
			continue
		}
		s := formatTimestamp(ts)
		out.Timestamp[i] = &s
	}
	for name, values := range d.Metrics {
		out.Metrics[name] = nullableFloats(values)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire shape. Unparseable timestamps become zero times
// and null readings become NaN; neither is an error.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var in datasetWire
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	out := NewDataset()
	out.Timestamps = make([]time.Time, len(in.Timestamp))
	for i, raw := range in.Timestamp {
		out.Timestamps[i] = decodeTimestamp(raw)
	}
	for name, values := range in.Metrics {
		out.Metrics[name] = floatsOrNaN(values)
	}
	out.IsAnomaly = make([]bool, len(in.IsAnomaly))
	for i, raw := range in.IsAnomaly {
		flag, err := decodeFlag(raw)
		if err != nil {
			return fmt.Errorf("is_anomaly[%d]: %w", i, err)
		}
		out.IsAnomaly[i] = flag
	}
	out.AnomalyScore = floatsOrNaN(in.AnomalyScore)

	*d = *out
	return nil
}

func nullableFloats(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if v, ok := finite(values[i]); ok {
			out[i] = &v
		}
	}
	return out
}

func floatsOrNaN(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

func decodeTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}
	}
	return epochToTime(f)
}

func decodeFlag(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `"0"`, `"false"`:
		return false, nil
	case "true", "1", `"1"`, `"true"`:
		return true, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("unsupported flag value %s", string(raw))
}
