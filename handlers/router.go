package handlers

import (
	"net/http"

	"sensor-rectifier/analytics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter returns the service handler. Request IDs and access logging wrap
// the mux so they also see requests no route matched.
func NewRouter(engine *analytics.AnalyticsEngine) http.Handler {
	r := mux.NewRouter()
	h := NewReadingHandler(engine)

	r.HandleFunc("/", Index).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", HealthCheck).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/process", h.HandleProcess).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/latest", h.HandleLatest).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/history", h.HandleHistory).Methods(http.MethodGet, http.MethodOptions)
	r.Path("/metrics").Handler(promhttp.Handler())

	r.Use(Recovery, mux.CORSMethodMiddleware(r), CORS)
	return RequestID(Logging(r)(r))
}
