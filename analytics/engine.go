package analytics

import (
	"context"
	"log"
	"sync"
	"time"

	"sensor-rectifier/models"
)

type AnomalyCallback func(field models.Field, outcome FieldOutcome)

// ResultStore keeps the most recent processed reading for dashboards.
type ResultStore interface {
	SaveResult(ctx context.Context, result models.ProcessedReading) error
	GetLatest(ctx context.Context) (*models.ProcessedReading, error)
}

// AnalyticsEngine owns the detector and serializes every call into it.
type AnalyticsEngine struct {
	detector  *AnomalyDetector
	store     ResultStore
	mu        sync.Mutex
	onAnomaly AnomalyCallback
	onField   func(field models.Field)
	now       func() time.Time
	saveChan  chan models.ProcessedReading
	pending   sync.WaitGroup
	closeOnce sync.Once
}

const saveQueueSize = 1024

type EngineOption func(*AnalyticsEngine)

func WithStore(store ResultStore) EngineOption {
	return func(ae *AnalyticsEngine) { ae.store = store }
}

func WithAnomalyCallback(cb AnomalyCallback) EngineOption {
	return func(ae *AnalyticsEngine) { ae.onAnomaly = cb }
}

// WithFieldCallback is called once per known field processed.
func WithFieldCallback(cb func(field models.Field)) EngineOption {
	return func(ae *AnalyticsEngine) { ae.onField = cb }
}

func WithClock(now func() time.Time) EngineOption {
	return func(ae *AnalyticsEngine) { ae.now = now }
}

func NewAnalyticsEngine(detector *AnomalyDetector, opts ...EngineOption) *AnalyticsEngine {
	engine := &AnalyticsEngine{
		detector: detector,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}

	// One saver keeps writes in processing order, so the store always
	// ends on the last processed reading.
	if engine.store != nil {
		engine.saveChan = make(chan models.ProcessedReading, saveQueueSize)
		go engine.saveResults()
	}
	return engine
}

func (ae *AnalyticsEngine) Process(reading models.Reading) (models.ProcessedReading, Result) {
	ae.mu.Lock()
	result := ae.detector.ProcessPoint(reading)
	processed := ae.buildProcessed(reading, result)
	ae.enqueueSave(processed)
	ae.mu.Unlock()

	for _, f := range models.Fields {
		outcome, ok := result.Fields[f]
		if !ok {
			continue
		}
		if ae.onField != nil {
			ae.onField(f)
		}
		if outcome.Anomaly && ae.onAnomaly != nil {
			ae.onAnomaly(f, outcome)
		}
	}

	if result.AnyAnomaly() {
		log.Printf("ANOMALY DETECTED: raw=%v anomalies=%v corrected=%v",
			rawValues(result), processed.Anomalies, result.Corrected())
	}

	return processed, result
}

func (ae *AnalyticsEngine) buildProcessed(reading models.Reading, result Result) models.ProcessedReading {
	processed := models.ProcessedReading{
		Original:    reading.Original(),
		Corrected:   make(map[string]any, len(reading.Extra)+len(result.Fields)),
		Anomalies:   result.Anomalies(),
		ProcessedAt: ae.now().UTC(),
	}
	for k, v := range reading.Extra {
		processed.Corrected[k] = v
	}
	for f, v := range result.Corrected() {
		processed.Corrected[string(f)] = v
	}
	return processed
}

// enqueueSave must be called under ae.mu so queue order matches processing order.
func (ae *AnalyticsEngine) enqueueSave(processed models.ProcessedReading) {
	if ae.saveChan == nil {
		return
	}
	ae.pending.Add(1)
	select {
	case ae.saveChan <- processed:
	default:
		ae.pending.Done()
		log.Printf("WARNING: save queue is full, dropping processed reading")
	}
}

func (ae *AnalyticsEngine) saveResults() {
	for res := range ae.saveChan {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := ae.store.SaveResult(ctx, res); err != nil {
			log.Printf("ERROR: failed to save processed reading: %v", err)
		}
		cancel()
		ae.pending.Done()
	}
}

// Latest returns the last stored reading, or nil when there is none or no
// store is configured.
func (ae *AnalyticsEngine) Latest(ctx context.Context) (*models.ProcessedReading, error) {
	if ae.store == nil {
		return nil, ErrNoStore
	}
	return ae.store.GetLatest(ctx)
}

func (ae *AnalyticsEngine) History() map[models.Field][]float64 {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.detector.Snapshot()
}

func (ae *AnalyticsEngine) WindowSize() int {
	return ae.detector.Config().WindowSize
}

// Flush waits for pending store writes.
func (ae *AnalyticsEngine) Flush() {
	ae.pending.Wait()
}

// Close drains the save queue and stops the saver. Process must not be
// called afterwards.
func (ae *AnalyticsEngine) Close() {
	ae.closeOnce.Do(func() {
		ae.mu.Lock()
		defer ae.mu.Unlock()
		if ae.saveChan != nil {
			close(ae.saveChan)
		}
		ae.pending.Wait()
	})
}

func rawValues(result Result) map[models.Field]float64 {
	out := make(map[models.Field]float64, len(result.Fields))
	for f, o := range result.Fields {
		out[f] = o.Raw
	}
	return out
}
