package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ReadingsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_readings_total",
			Help: "Total number of sensor field values processed",
		},
		[]string{"field"},
	)

	AnomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_anomalies_total",
			Help: "Total number of anomalous sensor field values",
		},
		[]string{"field", "reason"},
	)
)
