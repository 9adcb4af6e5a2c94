// Package iotanomaly detects anomalies in IoT sensor readings and prepares them for
// an interactive dashboard.
//
// Readings arrive as uploaded CSV files, as generated sample data, or through the
// Prometheus remote write endpoint. Each batch is scored with an isolation forest,
// capped for charting and stored as an [AnalysisRun].
//
// # Basic Usage
//
// Analyze a CSV file and build the default dashboard view:
//
//	cfg := iotanomaly.DefaultConfig()
//	store := iotanomaly.NewRunStore(iotanomaly.NewMemoryBackend(), nil, cfg.Storage.MaxRuns)
//	analyzer := iotanomaly.NewAnalyzer(cfg, store, nil, nil, nil)
//
//	run, err := analyzer.AnalyzeCSV(ctx, "sensors.csv", f, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	view, err := iotanomaly.BuildRunView(run, iotanomaly.ViewOptions{
//	    Range: iotanomaly.RangeLast100,
//	    Mode:  iotanomaly.DisplayBoth,
//	})
//
// The view pieces can also be derived directly from a [Dataset]:
//
//	window := iotanomaly.FilterByRange(ds, iotanomaly.RangeAnomalies)
//	chart := iotanomaly.ProjectSeries(window, "temperature", "humidity", iotanomaly.DisplayLine)
//	top := iotanomaly.RankAnomalies(window, "temperature", "humidity", 10)
//	dist := iotanomaly.DistributionHistogram(window, "temperature", "humidity")
//
// # Windows and display modes
//
// A window ([RangeKind]) keeps every row, the last 50, 100 or 1000 rows, or only the
// anomalous rows. Filtered rows keep their position in the source dataset so chart
// x values and detail lookups stay stable across windows.
//
// The trend chart draws normal rows as lines and anomalies as scatter points. When
// there is nothing normal to draw in line mode, the anomalies themselves are drawn
// as a connected line so the chart is never empty.
//
// # Serving
//
// [Server] exposes the JSON API, an HTML dashboard rendered with go-echarts, a
// WebSocket event stream and Prometheus metrics. Runs are stored through a
// [StorageBackend]: memory, local files, SQLite or S3, optionally encrypted with
// AES-256-GCM.
//
// Use [LoadConfig] to read a YAML file with IOTANOMALY_* environment overrides, or
// [DefaultConfig] for sensible defaults.
package iotanomaly
