package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"sensor-rectifier/analytics"
	"sensor-rectifier/models"
)

const (
	modelName    = "AnomalyDetector v1.0"
	maxBodyBytes = 1 << 16
)

type ReadingHandler struct {
	engine *analytics.AnalyticsEngine
}

func NewReadingHandler(engine *analytics.AnalyticsEngine) *ReadingHandler {
	return &ReadingHandler{engine: engine}
}

// CountAnomaly is an analytics.AnomalyCallback feeding the Prometheus counters.
func CountAnomaly(field models.Field, outcome analytics.FieldOutcome) {
	AnomaliesDetectedTotal.WithLabelValues(string(field), string(outcome.Reason)).Inc()
}

func CountReading(field models.Field) {
	ReadingsProcessedTotal.WithLabelValues(string(field)).Inc()
}

func (h *ReadingHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	reading, err := models.ParseReading(body)
	if err != nil {
		var coerceErr *models.CoercionError
		if errors.As(err, &coerceErr) {
			log.Printf("ERROR: processing data: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	processed, _ := h.engine.Process(reading)
	writeJSON(w, http.StatusOK, processed)
}

func (h *ReadingHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := h.engine.Latest(r.Context())
	if errors.Is(err, analytics.ErrNoStore) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get latest reading: "+err.Error())
		return
	}
	if latest == nil {
		writeError(w, http.StatusNotFound, "no reading processed yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (h *ReadingHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"window_size": h.engine.WindowSize(),
		"history":     h.engine.History(),
	})
}

func Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"message": "AI Pipeline Server is Running",
		"endpoints": []string{
			"/process (POST)",
			"/health (GET)",
			"/latest (GET)",
			"/history (GET)",
			"/metrics (GET)",
		},
	})
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:    "healthy",
		Model:     modelName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
