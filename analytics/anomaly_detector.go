package analytics

import (
	"math"

	"sensor-rectifier/models"
)

const (
	DefaultWindowSize = 20
	DefaultMinHistory = 5
	DefaultThreshold  = 3.0 // 3σ
	DefaultMinStdDev  = 0.1
)

type Bound struct {
	Min float64
	Max float64
}

func (b Bound) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bound) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(v, b.Max))
}

// PhysicalBounds are the plausible ranges of each sensor, independent of
// anything observed.
var PhysicalBounds = map[models.Field]Bound{
	models.Temperature: {Min: 10.0, Max: 40.0},
	models.Humidity:    {Min: 20.0, Max: 90.0},
	models.Light:       {Min: 0, Max: 1024}, // 10-bit ADC
}

type Reason string

const (
	ReasonNone   Reason = ""
	ReasonRange  Reason = "range"
	ReasonZScore Reason = "zscore"
)

type FieldOutcome struct {
	Raw       float64
	Corrected float64
	Anomaly   bool
	Reason    Reason
	ZScore    float64
}

// Result covers only the known fields present in the processed reading.
type Result struct {
	Fields map[models.Field]FieldOutcome
}

// Corrected returns the display values, rounded to two decimals.
func (r Result) Corrected() map[models.Field]float64 {
	out := make(map[models.Field]float64, len(r.Fields))
	for f, o := range r.Fields {
		out[f] = round2(o.Corrected)
	}
	return out
}

func (r Result) Anomalies() map[models.Field]bool {
	out := make(map[models.Field]bool, len(r.Fields))
	for f, o := range r.Fields {
		out[f] = o.Anomaly
	}
	return out
}

func (r Result) AnyAnomaly() bool {
	for _, o := range r.Fields {
		if o.Anomaly {
			return true
		}
	}
	return false
}

type DetectorConfig struct {
	WindowSize int
	MinHistory int
	Threshold  float64
	MinStdDev  float64
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MinHistory <= 0 {
		c.MinHistory = DefaultMinHistory
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MinStdDev <= 0 {
		c.MinStdDev = DefaultMinStdDev
	}
	return c
}

// AnomalyDetector keeps one history per known field. It is not safe for
// concurrent use; Engine serializes access to it.
type AnomalyDetector struct {
	cfg     DetectorConfig
	history map[models.Field]*FieldHistory
}

func NewAnomalyDetector(cfg DetectorConfig) *AnomalyDetector {
	cfg = cfg.withDefaults()
	ad := &AnomalyDetector{
		cfg:     cfg,
		history: make(map[models.Field]*FieldHistory, len(models.Fields)),
	}
	for _, f := range models.Fields {
		ad.history[f] = NewFieldHistory(cfg.WindowSize)
	}
	return ad
}

func (ad *AnomalyDetector) ProcessPoint(reading models.Reading) Result {
	result := Result{Fields: make(map[models.Field]FieldOutcome)}

	for _, f := range models.Fields {
		v, ok := reading.Value(f)
		if !ok {
			continue
		}
		outcome := ad.detect(f, v)
		// The rectified value goes into history so a spike does not
		// widen the baseline for the next readings.
		ad.history[f].Append(outcome.Corrected)
		result.Fields[f] = outcome
	}

	return result
}

func (ad *AnomalyDetector) detect(f models.Field, v float64) FieldOutcome {
	hist := ad.history[f]
	bound := PhysicalBounds[f]
	outcome := FieldOutcome{Raw: v, Corrected: v}

	if !bound.Contains(v) {
		outcome.Anomaly = true
		outcome.Reason = ReasonRange
		if hist.Size() > 0 {
			outcome.Corrected = hist.Mean()
		} else {
			outcome.Corrected = bound.Clamp(v)
		}
		return outcome
	}

	if hist.Size() < ad.cfg.MinHistory {
		return outcome
	}

	mean, stdDev := hist.MeanStdDev()
	if stdDev <= ad.cfg.MinStdDev {
		return outcome
	}

	outcome.ZScore = math.Abs(v-mean) / stdDev
	if outcome.ZScore > ad.cfg.Threshold {
		outcome.Anomaly = true
		outcome.Reason = ReasonZScore
		outcome.Corrected = mean
	}
	return outcome
}

// History returns a copy of one field's history, oldest first.
func (ad *AnomalyDetector) History(f models.Field) []float64 {
	hist, ok := ad.history[f]
	if !ok {
		return nil
	}
	return hist.Values()
}

func (ad *AnomalyDetector) Snapshot() map[models.Field][]float64 {
	out := make(map[models.Field][]float64, len(ad.history))
	for f, hist := range ad.history {
		out[f] = hist.Values()
	}
	return out
}

func (ad *AnomalyDetector) Config() DetectorConfig {
	return ad.cfg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
