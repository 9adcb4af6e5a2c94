package iotanomaly

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kandarlubis31/iot-anomaly-detector/internal/anomaly"
)

// Detection describes how a dataset was scored.
type Detection struct {
	Model         string   `json:"model"`
	Contamination float64  `json:"contamination"`
	Threshold     float64  `json:"threshold"`
	Features      []string `json:"features"`
	FittedRows    int      `json:"fitted_rows"`
}

func detectorModel(name string) (anomaly.Model, error) {
	return anomaly.ParseModel(name)
}

// DetectFrame fits an anomaly model on every numeric column of frame and returns the
// full dataset with per-row flags and scores. Rows with any missing feature are
// never anomalous and score 0.
func DetectFrame(ctx context.Context, frame *Frame, cfg DetectionConfig, contamination float64) (*Dataset, Detection, error) {
	if err := validateContamination(contamination); err != nil {
		return nil, Detection{}, err
	}
	if len(frame.Columns) == 0 {
		return nil, Detection{}, ErrNoNumericColumns
	}
	if cfg.MaxRows > 0 && frame.Len() > cfg.MaxRows {
		return nil, Detection{}, fmt.Errorf("%w: %d rows exceeds the limit of %d", ErrTooManyRows, frame.Len(), cfg.MaxRows)
	}
	model, err := detectorModel(cfg.Model)
	if err != nil {
		return nil, Detection{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Detection{}, err
	}

	det := anomaly.NewDetector(anomaly.Config{
		Model:         model,
		Contamination: contamination,
		NumTrees:      cfg.NumTrees,
		SampleSize:    cfg.SampleSize,
		Seed:          cfg.Seed,
	})
	res, err := det.Detect(anomaly.Rows(frame.Values, frame.Columns))
	if errors.Is(err, anomaly.ErrInsufficientData) {
		return nil, Detection{}, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}
	if err != nil {
		return nil, Detection{}, fmt.Errorf("detect: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Detection{}, err
	}

	ds := &Dataset{
		Timestamps:   append(frame.Timestamps[:0:0], frame.Timestamps...),
		Metrics:      make(map[string][]float64, len(frame.Columns)),
		IsAnomaly:    res.Anomalies,
		AnomalyScore: make([]float64, len(res.Scores)),
	}
	for _, name := range frame.Columns {
		ds.Metrics[name] = append([]float64(nil), frame.Values[name]...)
	}
	for i, s := range res.Scores {
		ds.AnomalyScore[i] = roundTo(s, 4)
	}

	return ds, Detection{
		Model:         model.String(),
		Contamination: contamination,
		Threshold:     res.Threshold,
		Features:      append([]string(nil), frame.Columns...),
		FittedRows:    res.Fitted,
	}, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
