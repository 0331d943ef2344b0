package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"susd/events"
)

// EngineMetrics counts engine state changes as observed through the event
// stream.
type EngineMetrics struct {
	events *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "susd",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Total committed engine state changes segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(engineRegistry.events)
	})
	return engineRegistry
}

// meteredEmitter counts every event before forwarding it downstream.
type meteredEmitter struct {
	metrics *EngineMetrics
	next    events.Emitter
}

// MeterEvents wraps the emitter so that every committed engine event is
// counted. A nil next emitter discards events after counting.
func MeterEvents(next events.Emitter) events.Emitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return meteredEmitter{metrics: Engine(), next: next}
}

func (m meteredEmitter) Emit(ev events.Event) {
	if ev != nil {
		m.metrics.events.WithLabelValues(ev.EventType()).Inc()
	}
	m.next.Emit(ev)
}

// GatewayMetrics records HTTP query-surface activity.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "susd",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "susd",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.latency)
	})
	return gatewayRegistry
}

// Middleware instruments the handler chain under the provided route label.
func (g *GatewayMetrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			g.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			g.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
