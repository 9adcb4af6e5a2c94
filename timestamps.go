package iotanomaly

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout used when timestamps are written to JSON and CSV.
const TimestampLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	time.RFC3339,
	time.RFC3339Nano,
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s using the known layouts, falling back to a Unix epoch
// number in seconds or milliseconds. Layouts without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToTime(f), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

// epochToTime treats values above 1e12 as milliseconds.
func epochToTime(f float64) time.Time {
	if math.Abs(f) > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
