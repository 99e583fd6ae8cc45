package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	simulations     *prometheus.CounterVec
	simDuration     *prometheus.HistogramVec
	trades          *prometheus.CounterVec
	activeSims      prometheus.Gauge
	queueRejections prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	wsClients       prometheus.GaugeFunc
}

// NewMetrics registers all collectors. clientCount reports connected WebSocket clients.
func NewMetrics(clientCount func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulator",
			Name:      "simulations_total",
			Help:      "Finished simulations by strategy type and terminal status.",
		}, []string{"strategy", "status"}),
		simDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simulator",
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of completed simulations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"strategy"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulator",
			Name:      "simulated_trades_total",
			Help:      "Trades executed by completed simulations.",
		}, []string{"side"}),
		activeSims: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simulator",
			Name:      "active_simulations",
			Help:      "Simulations queued or running.",
		}),
		queueRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simulator",
			Name:      "queue_rejections_total",
			Help:      "Simulation submissions rejected because the queue was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulator",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simulator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		wsClients: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "simulator",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(clientCount()) }),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.simulations, m.simDuration, m.trades, m.activeSims,
		m.queueRejections, m.httpRequests, m.httpLatency, m.wsClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) simulationStarted() { m.activeSims.Inc() }

func (m *Metrics) simulationFinished(strategy types.StrategyType, status types.SimulationStatus, result *types.SimulationResult) {
	m.activeSims.Dec()
	m.simulations.WithLabelValues(string(strategy), string(status)).Inc()
	if result == nil {
		return
	}
	m.simDuration.WithLabelValues(string(strategy)).Observe(result.Duration.Seconds())
	for _, t := range result.Trades {
		m.trades.WithLabelValues(string(t.Type)).Inc()
	}
}

// statusRecorder captures the response code for instrumentation
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency keyed by the mux route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		// WebSocket upgrades need the original writer for hijacking
		if websocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		m.httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
	})
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
