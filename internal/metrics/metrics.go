package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's collectors. It is a VerificationObserver so it
// can be chained next to the log observer.
type Metrics struct {
	registry           *prometheus.Registry
	verificationEvents *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		verificationEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_events_total",
				Help: "Verification flow transitions by purpose and event",
			},
			[]string{"purpose", "event"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) Observe(event service.VerificationEvent) {
	m.verificationEvents.WithLabelValues(string(event.Purpose), string(event.Kind)).Inc()
}

// ObserveRequest records one handled request. route is the matched route
// template, never the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ service.VerificationObserver = (*Metrics)(nil)
