package iotanomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// ingestIgnoredLabels are scrape labels left out of buffered metric names.
var ingestIgnoredLabels = map[string]bool{
	"__name__": true,
	"job":      true,
	"instance": true,
}

// DecodeRemoteWrite decodes a snappy-compressed Prometheus remote write request.
func DecodeRemoteWrite(body []byte) (*prompb.WriteRequest, error) {
	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("decode snappy: %w", err)
	}
	var req prompb.WriteRequest
	if err := req.Unmarshal(decoded); err != nil {
		return nil, fmt.Errorf("decode write request: %w", err)
	}
	return &req, nil
}

// EncodeRemoteWrite is the inverse of DecodeRemoteWrite.
func EncodeRemoteWrite(req *prompb.WriteRequest) ([]byte, error) {
	raw, err := req.Marshal()
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// IngestBuffer collects live samples as dataset rows. Samples are grouped by their
// timestamp rounded to the configured resolution, so metrics scraped together form
// one row. The buffer keeps at most MaxRows rows, evicting the oldest.
type IngestBuffer struct {
	cfg     IngestConfig
	metrics *Metrics

	mu      sync.Mutex
	rows    map[int64]map[string]float64
	columns map[string]struct{}
}

// NewIngestBuffer returns an empty buffer. metrics may be nil.
func NewIngestBuffer(cfg IngestConfig, metrics *Metrics) *IngestBuffer {
	if cfg.Resolution <= 0 {
		cfg.Resolution = time.Second
	}
	return &IngestBuffer{
		cfg:     cfg,
		metrics: metrics,
		rows:    make(map[int64]map[string]float64),
		columns: make(map[string]struct{}),
	}
}

// Append adds every finite sample of req and returns how many were accepted.
// Stale markers and other non-finite values are skipped.
func (b *IngestBuffer) Append(req *prompb.WriteRequest) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := b.cfg.Resolution.Milliseconds()
	if res <= 0 {
		res = 1
	}

	accepted := 0
	for i := range req.Timeseries {
		ts := &req.Timeseries[i]
		name := seriesKey(ts.Labels)
		if name == "" {
			continue
		}
		for _, s := range ts.Samples {
			if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
				continue
			}
			key := s.Timestamp / res * res
			row, ok := b.rows[key]
			if !ok {
				row = make(map[string]float64)
				b.rows[key] = row
			}
			row[name] = s.Value
			b.columns[name] = struct{}{}
			accepted++
		}
	}
	b.evictLocked()
	b.metrics.observeIngest(accepted, len(b.rows))
	return accepted
}

func (b *IngestBuffer) evictLocked() {
	if b.cfg.MaxRows <= 0 || len(b.rows) <= b.cfg.MaxRows {
		return
	}
	keys := b.sortedKeysLocked()
	for _, k := range keys[:len(keys)-b.cfg.MaxRows] {
		delete(b.rows, k)
	}

	// Drop series whose rows have all been evicted.
	live := make(map[string]struct{}, len(b.columns))
	for _, row := range b.rows {
		for name := range row {
			live[name] = struct{}{}
		}
	}
	b.columns = live
}

func (b *IngestBuffer) sortedKeysLocked() []int64 {
	keys := make([]int64, 0, len(b.rows))
	for k := range b.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of buffered rows.
func (b *IngestBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Columns returns the buffered metric names in sorted order.
func (b *IngestBuffer) Columns() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.columnsLocked()
}

func (b *IngestBuffer) columnsLocked() []string {
	names := make([]string, 0, len(b.columns))
	for n := range b.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Frame snapshots the buffer in time order. Metrics absent from a row are NaN.
func (b *IngestBuffer) Frame() *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.sortedKeysLocked()
	f := &Frame{
		Columns:    b.columnsLocked(),
		Values:     make(map[string][]float64, len(b.columns)),
		Timestamps: make([]time.Time, len(keys)),
		Encoding:   "remote-write",
	}
	for _, name := range f.Columns {
		f.Values[name] = make([]float64, len(keys))
	}
	for i, k := range keys {
		f.Timestamps[i] = time.UnixMilli(k).UTC()
		row := b.rows[k]
		for _, name := range f.Columns {
			v, ok := row[name]
			if !ok {
				v = math.NaN()
			}
			f.Values[name][i] = v
		}
	}
	return f
}

// Clear drops every buffered row.
func (b *IngestBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = make(map[int64]map[string]float64)
	b.columns = make(map[string]struct{})
	b.metrics.observeIngest(0, 0)
}

// seriesKey names a remote write series by its metric name plus any labels other than
// the scrape labels, e.g. temperature{room="lab"}.
func seriesKey(labels []prompb.Label) string {
	name := ""
	var extra []string
	for _, l := range labels {
		switch {
		case l.Name == "__name__":
			name = l.Value
		case !ingestIgnoredLabels[l.Name]:
			extra = append(extra, fmt.Sprintf("%s=%q", l.Name, l.Value))
		}
	}
	if name == "" || len(extra) == 0 {
		return name
	}
	sort.Strings(extra)
	return name + "{" + strings.Join(extra, ",") + "}"
}
