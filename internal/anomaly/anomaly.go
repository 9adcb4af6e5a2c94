package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Config configures the batch anomaly detector.
type Config struct {
	// Model is the anomaly detection model to use.
	Model Model

	// Contamination is the expected share of anomalous rows, in (0, 0.5].
	Contamination float64

	// NumTrees is the number of isolation trees.
	NumTrees int

	// SampleSize is the subsample size used to grow each tree.
	SampleSize int

	// MinRows is the minimum number of complete rows required for fitting.
	MinRows int

	// Seed makes tree growth and subsampling reproducible.
	Seed int64
}

// Model identifies the anomaly detection algorithm.
type Model int

const (
	// ModelIsolationForest uses an isolation forest over all features.
	ModelIsolationForest Model = iota
	// ModelStatistical uses per-feature z-score and IQR bounds.
	ModelStatistical
)

func (m Model) String() string {
	switch m {
	case ModelIsolationForest:
		return "isolation_forest"
	case ModelStatistical:
		return "statistical"
	default:
		return "unknown"
	}
}

// ParseModel parses a model name as returned by Model.String.
func ParseModel(s string) (Model, error) {
	switch s {
	case "", "isolation_forest":
		return ModelIsolationForest, nil
	case "statistical":
		return ModelStatistical, nil
	}
	return 0, fmt.Errorf("unknown anomaly model %q", s)
}

// DefaultConfig returns default detector configuration.
func DefaultConfig() Config {
	return Config{
		Model:         ModelIsolationForest,
		Contamination: 0.03,
		NumTrees:      100,
		SampleSize:    256,
		MinRows:       2,
		Seed:          42,
	}
}

var (
	// ErrInsufficientData is returned when fewer than MinRows complete rows are available.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotTrained is returned when scoring before Fit.
	ErrNotTrained = errors.New("model not trained")
)

// Result holds per-row detection output. Rows with a missing feature are
// never anomalous and score 0.
type Result struct {
	Scores    []float64 `json:"scores"`
	Anomalies []bool    `json:"anomalies"`
	Threshold float64   `json:"threshold"`
	Fitted    int       `json:"fitted"`
}

// AnomalyCount returns the number of rows flagged anomalous.
func (r Result) AnomalyCount() int {
	n := 0
	for _, a := range r.Anomalies {
		if a {
			n++
		}
	}
	return n
}

// scorer is implemented by every model.
type scorer interface {
	fit(rows [][]float64, rng *rand.Rand)
	score(row []float64) float64
}

// Detector fits a model to a batch of rows and flags the highest scoring share.
type Detector struct {
	config Config

	mu        sync.RWMutex
	model     scorer
	threshold float64
	features  int
	lastTrain time.Time
	trainSize int
}

// NewDetector creates a detector, filling unset fields from DefaultConfig.
func NewDetector(config Config) *Detector {
	def := DefaultConfig()
	if config.Contamination <= 0 || config.Contamination > 0.5 {
		config.Contamination = def.Contamination
	}
	if config.NumTrees <= 0 {
		config.NumTrees = def.NumTrees
	}
	if config.SampleSize <= 0 {
		config.SampleSize = def.SampleSize
	}
	if config.MinRows <= 0 {
		config.MinRows = def.MinRows
	}
	return &Detector{config: config}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Fit trains the model on the complete rows and sets the decision threshold to the
// (1 - contamination) quantile of their training scores.
func (d *Detector) Fit(rows [][]float64) error {
	complete := completeRows(rows)
	if len(complete) < d.config.MinRows {
		return fmt.Errorf("%w: need %d complete rows, have %d", ErrInsufficientData, d.config.MinRows, len(complete))
	}

	var model scorer
	switch d.config.Model {
	case ModelStatistical:
		model = NewStatisticalModel()
	default:
		model = NewIsolationForest(d.config.NumTrees, d.config.SampleSize)
	}
	rng := rand.New(rand.NewSource(d.config.Seed))
	model.fit(complete, rng)

	scores := make([]float64, len(complete))
	for i, row := range complete {
		scores[i] = model.score(row)
	}
	sort.Float64s(scores)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.model = model
	d.threshold = percentile(scores, 100*(1-d.config.Contamination))
	d.features = len(complete[0])
	d.lastTrain = time.Now()
	d.trainSize = len(complete)
	return nil
}

// Score returns the anomaly score of a single row in [0,1], higher meaning more anomalous.
func (d *Detector) Score(row []float64) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.model == nil {
		return 0, ErrNotTrained
	}
	if len(row) != d.features {
		return 0, fmt.Errorf("row has %d features, model expects %d", len(row), d.features)
	}
	if !isComplete(row) {
		return 0, nil
	}
	return d.model.score(row), nil
}

// Predict scores rows with the fitted model. Rows missing a feature score 0.
func (d *Detector) Predict(rows [][]float64) (Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.model == nil {
		return Result{}, ErrNotTrained
	}

	res := Result{
		Scores:    make([]float64, len(rows)),
		Anomalies: make([]bool, len(rows)),
		Threshold: d.threshold,
		Fitted:    d.trainSize,
	}
	for i, row := range rows {
		if len(row) != d.features || !isComplete(row) {
			continue
		}
		s := d.model.score(row)
		res.Scores[i] = s
		res.Anomalies[i] = s > d.threshold
	}
	return res, nil
}

// Detect fits the model on rows and scores the same rows.
func (d *Detector) Detect(rows [][]float64) (Result, error) {
	if err := d.Fit(rows); err != nil {
		return Result{}, err
	}
	return d.Predict(rows)
}

// Stats returns detector statistics.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{
		Model:         d.config.Model.String(),
		Trained:       d.model != nil,
		LastTrainTime: d.lastTrain,
		TrainDataSize: d.trainSize,
		Contamination: d.config.Contamination,
		Threshold:     d.threshold,
		Features:      d.features,
	}
}

// Stats contains detector statistics.
type Stats struct {
	Model         string    `json:"model"`
	Trained       bool      `json:"trained"`
	LastTrainTime time.Time `json:"last_train_time"`
	TrainDataSize int       `json:"train_data_size"`
	Contamination float64   `json:"contamination"`
	Threshold     float64   `json:"threshold"`
	Features      int       `json:"features"`
}

// ========== Model Implementations ==========

// IsolationForest implements the Isolation Forest algorithm over multi-feature rows.
type IsolationForest struct {
	numTrees   int
	sampleSize int
	psi        int
	trees      []*IsolationNode
}

// IsolationNode is a node in an isolation tree.
type IsolationNode struct {
	feature    int
	splitValue float64
	left       *IsolationNode
	right      *IsolationNode
	size       int
	isLeaf     bool
}

// NewIsolationForest creates a new isolation forest.
func NewIsolationForest(numTrees, sampleSize int) *IsolationForest {
	return &IsolationForest{
		numTrees:   numTrees,
		sampleSize: sampleSize,
	}
}

func (f *IsolationForest) fit(rows [][]float64, rng *rand.Rand) {
	f.psi = min(f.sampleSize, len(rows))
	maxDepth := int(math.Ceil(math.Log2(float64(max(f.psi, 2)))))

	f.trees = make([]*IsolationNode, f.numTrees)
	for i := range f.trees {
		sample := randomSample(rows, f.psi, rng)
		f.trees[i] = buildTree(sample, 0, maxDepth, rng)
	}
}

// Train fits the forest with a fixed seed.
func (f *IsolationForest) Train(rows [][]float64, seed int64) {
	f.fit(completeRows(rows), rand.New(rand.NewSource(seed)))
}

func buildTree(rows [][]float64, depth, maxDepth int, rng *rand.Rand) *IsolationNode {
	if len(rows) <= 1 || depth >= maxDepth {
		return &IsolationNode{size: len(rows), isLeaf: true}
	}

	// Only features with spread can split.
	features := make([]int, 0, len(rows[0]))
	for j := range rows[0] {
		lo, hi := columnRange(rows, j)
		if lo != hi {
			features = append(features, j)
		}
	}
	if len(features) == 0 {
		return &IsolationNode{size: len(rows), isLeaf: true}
	}

	feature := features[rng.Intn(len(features))]
	lo, hi := columnRange(rows, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &IsolationNode{
		feature:    feature,
		splitValue: split,
		left:       buildTree(left, depth+1, maxDepth, rng),
		right:      buildTree(right, depth+1, maxDepth, rng),
		size:       len(rows),
	}
}

func (f *IsolationForest) score(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0.5
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	c := averagePathLength(float64(f.psi))
	if c == 0 {
		return 0.5
	}
	// Closer to 1 = more anomalous.
	return math.Pow(2, -(total/float64(len(f.trees)))/c)
}

// Score returns the anomaly score of row, or 0.5 for an untrained forest.
func (f *IsolationForest) Score(row []float64) float64 {
	return f.score(row)
}

func pathLength(node *IsolationNode, row []float64, depth int) float64 {
	if node == nil {
		return float64(depth)
	}
	if node.isLeaf {
		return float64(depth) + averagePathLength(float64(node.size))
	}
	if row[node.feature] < node.splitValue {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// StatisticalModel scores each feature by z-score and IQR bounds and keeps the worst.
type StatisticalModel struct {
	trained bool
	columns []columnStats
}

type columnStats struct {
	mean, std    float64
	q1, q3, iqr  float64
	lower, upper float64
}

// NewStatisticalModel creates a new statistical model.
func NewStatisticalModel() *StatisticalModel {
	return &StatisticalModel{}
}

func (m *StatisticalModel) fit(rows [][]float64, _ *rand.Rand) {
	if len(rows) == 0 {
		return
	}
	m.columns = make([]columnStats, len(rows[0]))
	col := make([]float64, len(rows))
	for j := range m.columns {
		for i, r := range rows {
			col[i] = r[j]
		}
		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)

		cs := columnStats{mean: mean(col), std: stdDev(col)}
		cs.q1 = percentile(sorted, 25)
		cs.q3 = percentile(sorted, 75)
		cs.iqr = cs.q3 - cs.q1
		cs.lower = cs.q1 - 1.5*cs.iqr
		cs.upper = cs.q3 + 1.5*cs.iqr
		m.columns[j] = cs
	}
	m.trained = true
}

// Train fits the model on rows.
func (m *StatisticalModel) Train(rows [][]float64) {
	m.fit(completeRows(rows), nil)
}

func (m *StatisticalModel) score(row []float64) float64 {
	if !m.trained {
		return 0.5
	}
	worst := 0.0
	for j, cs := range m.columns {
		if cs.std == 0 {
			continue
		}
		z := math.Abs(row[j]-cs.mean) / cs.std
		iqrScore := 0.0
		if cs.iqr > 0 && (row[j] < cs.lower || row[j] > cs.upper) {
			iqrScore = 1.0
		}
		worst = math.Max(worst, 0.7*sigmoid(z-2)+0.3*iqrScore)
	}
	return worst
}

// Score returns the anomaly score of row.
func (m *StatisticalModel) Score(row []float64) float64 {
	return m.score(row)
}

// ========== Helper Functions ==========

func completeRows(rows [][]float64) [][]float64 {
	width := -1
	out := make([][]float64, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 || !isComplete(r) {
			continue
		}
		if width < 0 {
			width = len(r)
		}
		if len(r) != width {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isComplete(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func randomSample(rows [][]float64, size int, rng *rand.Rand) [][]float64 {
	if len(rows) <= size {
		return rows
	}
	idx := rng.Perm(len(rows))[:size]
	sample := make([][]float64, size)
	for i, j := range idx {
		sample[i] = rows[j]
	}
	return sample
}

func columnRange(rows [][]float64, j int) (float64, float64) {
	lo, hi := rows[0][j], rows[0][j]
	for _, r := range rows[1:] {
		lo = math.Min(lo, r[j])
		hi = math.Max(hi, r[j])
	}
	return lo, hi
}

func sigmoid(x float64) float64 {
	if x < -500 {
		return 0
	}
	if x > 500 {
		return 1
	}
	return 1.0 / (1.0 + math.Exp(-x))
}

func stdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := mean(data)
	variance := 0.0
	for _, v := range data {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(data)))
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := (p / 100) * float64(len(sorted)-1)
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)]
	}
	return sorted[int(f)]*(c-k) + sorted[int(c)]*(k-f)
}
