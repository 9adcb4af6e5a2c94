package iotanomaly

import (
	"fmt"
	"strings"
)

// metricUnits maps a metric name fragment to its display unit.
// Order matters: the first fragment contained in a name wins.
var metricUnits = []struct {
	fragment string
	unit     string
}{
	{"temperature", "°C"},
	{"temp", "°C"},
	{"humidity", "%"},
	{"power", "W"},
	{"pressure", "hPa"},
	{"air", "AQI"},
	{"light", "Lux"},
	{"loudness", "dB"},
}

// MetricUnit returns the display unit for a metric name, or "" when none is known.
func MetricUnit(name string) string {
	lower := strings.ToLower(name)
	for _, u := range metricUnits {
		if strings.Contains(lower, u.fragment) {
			return u.unit
		}
	}
	return ""
}

// MetricLabel formats a metric name for chart legends, e.g. "temperature (°C)".
func MetricLabel(name string) string {
	if unit := MetricUnit(name); unit != "" {
		return fmt.Sprintf("%s (%s)", name, unit)
	}
	return name
}

// DefaultMetricPair picks the metrics shown when the caller selects none.
// The primary is the first name containing "temperature", otherwise the first name.
// The secondary is the first other name, or the primary again for single-metric data.
func DefaultMetricPair(names []string) (primary, secondary string) {
	if len(names) == 0 {
		return "", ""
	}
	primary = names[0]
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), "temperature") {
			primary = n
			break
		}
	}
	secondary = primary
	for _, n := range names {
		if n != primary {
			secondary = n
			break
		}
	}
	return primary, secondary
}

// ResolveMetricPair fills empty selections with the defaults for ds and checks that
// both metrics exist.
func ResolveMetricPair(ds *Dataset, primary, secondary string) (string, string, error) {
	defPrimary, defSecondary := DefaultMetricPair(ds.MetricNames())
	if primary == "" {
		primary = defPrimary
	}
	if secondary == "" {
		secondary = defSecondary
		if secondary == primary {
			for _, n := range ds.MetricNames() {
				if n != primary {
					secondary = n
					break
				}
			}
		}
	}
	for _, m := range []string{primary, secondary} {
		if !ds.HasMetric(m) {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownMetric, m)
		}
	}
	return primary, secondary, nil
}
