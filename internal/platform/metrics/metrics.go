// Package metrics wraps the Prometheus collectors of the server. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const otherLabel = "other"

type Collector struct {
	registry *prometheus.Registry
	methods  map[string]struct{}

	rpcRequests *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec

	sessionsActive    prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    *prometheus.CounterVec
	sessionsRecovered prometheus.Counter

	streamsActive prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
}

// NewCollector registers all collectors on a private registry. RPC methods
// outside knownMethods are reported under the "other" label.
func NewCollector(namespace string, knownMethods ...string) *Collector {
	if namespace == "" {
		namespace = "todo_mcp"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		methods:  make(map[string]struct{}, len(knownMethods)),
	}
	for _, m := range knownMethods {
		c.methods[m] = struct{}{}
	}

	c.rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and outcome (ok, business_error, error)",
		},
		[]string{"method", "outcome"},
	)
	c.rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "JSON-RPC dispatch latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"method"},
	)
	c.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Registered sessions",
	})
	c.sessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "opened_total",
		Help:      "Sessions opened",
	})
	c.sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Sessions closed by reason",
		},
		[]string{"reason"},
	)
	c.sessionsRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "recovered_total",
		Help:      "Calls with an unknown session id that opened a session implicitly",
	})
	c.streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "streams",
		Name:      "active",
		Help:      "Attached event streams",
	})
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	c.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	c.registry.MustRegister(
		c.rpcRequests,
		c.rpcDuration,
		c.sessionsActive,
		c.sessionsOpened,
		c.sessionsClosed,
		c.sessionsRecovered,
		c.streamsActive,
		c.httpRequests,
		c.rateLimited,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveRPC(method, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	label := c.methodLabel(method)
	c.rpcRequests.WithLabelValues(label, outcome).Inc()
	c.rpcDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsOpened.Inc()
	c.sessionsActive.Inc()
}

func (c *Collector) SessionClosed(reason string) {
	if c == nil {
		return
	}
	c.sessionsClosed.WithLabelValues(reason).Inc()
	c.sessionsActive.Dec()
}

func (c *Collector) SessionRecovered() {
	if c == nil {
		return
	}
	c.sessionsRecovered.Inc()
}

func (c *Collector) StreamOpened() {
	if c == nil {
		return
	}
	c.streamsActive.Inc()
}

func (c *Collector) StreamClosed() {
	if c == nil {
		return
	}
	c.streamsActive.Dec()
}

func (c *Collector) RateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(route).Inc()
}

// InstrumentHandler counts responses of next under a fixed route label.
func (c *Collector) InstrumentHandler(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

func (c *Collector) methodLabel(method string) string {
	if _, ok := c.methods[method]; ok {
		return method
	}
	return otherLabel
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
