package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replai_messages_observed_total",
		Help: "Total number of new inbound messages observed",
	})

	debounceFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replai_debounce_fires_total",
		Help: "Total number of settled bursts enqueued for response",
	})

	queueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replai_queue_drops_total",
		Help: "Total number of enqueue attempts dropped because the queue was full",
	})

	generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replai_generations_total",
		Help: "Total number of response generations by outcome",
	}, []string{"outcome"})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replai_messages_sent_total",
		Help: "Total number of outbound message segments sent",
	})

	modelRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "replai_model_request_duration_seconds",
		Help:    "Duration of model calls during response generation",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replai_queue_depth",
		Help: "Current number of chats awaiting a response",
	})

	trackedChats = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replai_tracked_chats",
		Help: "Number of chats with live state",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageObserved records one new inbound message
func (m *Metrics) RecordMessageObserved() {
	messagesObserved.Inc()
}

// RecordDebounceFire records a settled burst joining the queue
func (m *Metrics) RecordDebounceFire() {
	debounceFires.Inc()
}

// RecordQueueDrop records a dropped admission
func (m *Metrics) RecordQueueDrop() {
	queueDrops.Inc()
}

// RecordGeneration records a finished generation attempt
func (m *Metrics) RecordGeneration(outcome string) {
	generations.WithLabelValues(outcome).Inc()
}

// RecordSend records one outbound segment
func (m *Metrics) RecordSend() {
	messagesSent.Inc()
}

// RecordModelRequest records the duration of a model call
func (m *Metrics) RecordModelRequest(duration time.Duration) {
	modelRequestDuration.Observe(duration.Seconds())
}

// SetQueueDepth sets the current queue depth
func (m *Metrics) SetQueueDepth(depth float64) {
	queueDepth.Set(depth)
}

// SetTrackedChats sets the number of tracked chats
func (m *Metrics) SetTrackedChats(count float64) {
	trackedChats.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
