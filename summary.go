package iotanomaly

// Summary holds the headline counts of an analysis run.
type Summary struct {
	TotalPoints  int `json:"total_points"`
	NumAnomalies int `json:"num_anomalies"`
	NormalPoints int `json:"normal_points"`
	// AnomalyPercentage is rounded to two decimals.
	AnomalyPercentage float64 `json:"anomaly_percentage"`
}

// Summarize counts the rows and anomalies of ds.
func Summarize(ds *Dataset) Summary {
	total := ds.Len()
	anomalies := 0
	if ds != nil {
		anomalies = ds.AnomalyCount()
	}
	s := Summary{
		TotalPoints:  total,
		NumAnomalies: anomalies,
		NormalPoints: total - anomalies,
	}
	if total > 0 {
		s.AnomalyPercentage = roundTo(float64(anomalies)/float64(total)*100, 2)
	}
	return s
}
