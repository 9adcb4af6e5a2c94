package iotanomaly

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDataset_MarshalJSON(t *testing.T) {
	ds := fixtureDataset(3, 1)
	ds.Metrics["temperature"][2] = math.NaN()
	ds.Timestamps[0] = time.Time{}

	data, err := json.Marshal(ds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{
		`"timestamp":[null,"2024-03-01 12:01:00","2024-03-01 12:02:00"]`,
		`"temperature":[20,21,null]`,
		`"is_anomaly":[false,true,false]`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
}

func TestDataset_UnmarshalJSON(t *testing.T) {
	input := `{
		"timestamp": ["2024-03-01 12:00:00", 1709294460, "garbage", null],
		"metrics": {"temperature": [21.5, null, 23, 24]},
		"is_anomaly": [0, 1, true, "0"],
		"anomaly_score": [0.1, 0.9, null, 0.2]
	}`

	var ds Dataset
	if err := json.Unmarshal([]byte(input), &ds); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := ds.Validate(); err != nil {
		t.Fatalf("decoded dataset should be aligned: %v", err)
	}
	if !ds.Timestamps[0].Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp[0] = %v", ds.Timestamps[0])
	}
	if ds.Timestamps[1].Unix() != 1709294460 {
		t.Errorf("epoch timestamp = %v", ds.Timestamps[1])
	}
	if !ds.Timestamps[2].IsZero() || !ds.Timestamps[3].IsZero() {
		t.Error("unparseable and null timestamps should be zero")
	}
	if !math.IsNaN(ds.Metrics["temperature"][1]) || !math.IsNaN(ds.AnomalyScore[2]) {
		t.Error("null numbers should decode as NaN")
	}
	want := []bool{false, true, true, false}
	for i := range want {
		if ds.IsAnomaly[i] != want[i] {
			t.Errorf("is_anomaly = %v, want %v", ds.IsAnomaly, want)
			break
		}
	}
}

func TestDataset_UnmarshalJSONBadFlag(t *testing.T) {
	var ds Dataset
	err := json.Unmarshal([]byte(`{"timestamp":[],"metrics":{},"is_anomaly":["maybe"],"anomaly_score":[]}`), &ds)
	if err == nil {
		t.Error("expected error for unsupported flag value")
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-03-01 12:30:00",
		"2024-03-01T12:30:00",
		"2024-03-01T12:30:00Z",
		"03/01/2024 12:30",
		"1709296200",
		"1709296200000",
	} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "yesterday"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
