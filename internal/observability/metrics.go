// Package observability bundles the Prometheus metrics and OpenTelemetry
// tracing used around compile operations.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/wiregrid/internal/specerr"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeEngine  = "engine_error"
)

// Collector holds the compile metrics. A nil *Collector records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Connects         *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	Disconnects      *prometheus.CounterVec
	Queries          *prometheus.CounterVec
	QuerySizes       prometheus.Histogram
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses
// the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	connects, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiregrid_connect_total",
		Help: "Connect requests, labeled by path (direct or spatial), rule and outcome.",
	}, []string{"path", "rule", "outcome"}), "wiregrid_connect_total")
	if err != nil {
		return nil, err
	}
	validation, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiregrid_validation_errors_total",
		Help: "Rejected requests, labeled by error kind (type, value or domain).",
	}, []string{"kind"}), "wiregrid_validation_errors_total")
	if err != nil {
		return nil, err
	}
	disconnects, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiregrid_disconnect_total",
		Help: "Disconnect requests, labeled by outcome.",
	}, []string{"outcome"}), "wiregrid_disconnect_total")
	if err != nil {
		return nil, err
	}
	queries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiregrid_query_total",
		Help: "GetConnections requests, labeled by outcome.",
	}, []string{"outcome"}), "wiregrid_query_total")
	if err != nil {
		return nil, err
	}
	sizes, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wiregrid_query_connections",
		Help:    "Number of connections returned per GetConnections request.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}), "wiregrid_query_connections")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Connects:         connects,
		ValidationErrors: validation,
		Disconnects:      disconnects,
		Queries:          queries,
		QuerySizes:       sizes,
	}, nil
}

// Outcome classifies err for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case specerr.KindOf(err) != 0:
		return OutcomeInvalid
	default:
		return OutcomeEngine
	}
}

// ObserveValidation counts err when it is a compile error.
func (c *Collector) ObserveValidation(err error) {
	if c == nil || c.ValidationErrors == nil {
		return
	}
	if kind := specerr.KindOf(err); kind != 0 {
		c.ValidationErrors.WithLabelValues(kind.String()).Inc()
	}
}

// ObserveConnect records one Connect call.
func (c *Collector) ObserveConnect(path, rule string, err error) {
	if c == nil {
		return
	}
	c.ObserveValidation(err)
	if c.Connects != nil {
		c.Connects.WithLabelValues(path, rule, Outcome(err)).Inc()
	}
}

// ObserveDisconnect records one Disconnect call.
func (c *Collector) ObserveDisconnect(err error) {
	if c == nil {
		return
	}
	c.ObserveValidation(err)
	if c.Disconnects != nil {
		c.Disconnects.WithLabelValues(Outcome(err)).Inc()
	}
}

// ObserveQuery records one GetConnections call and its result size.
func (c *Collector) ObserveQuery(n int, err error) {
	if c == nil {
		return
	}
	c.ObserveValidation(err)
	if c.Queries != nil {
		c.Queries.WithLabelValues(Outcome(err)).Inc()
	}
	if err == nil && c.QuerySizes != nil {
		c.QuerySizes.Observe(float64(n))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
