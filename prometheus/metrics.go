package prometheus

import (
	"errors"
	"fmt"

	"github.com/abczzz13/httpip"
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	resolutionTotalName = "client_ip_resolution_total"
	securityEventsName  = "client_ip_security_events_total"
)

// PrometheusMetrics is a Prometheus-backed implementation of httpip.Metrics.
type PrometheusMetrics struct {
	resolutionTotal *prom.CounterVec
	securityEvents  *prom.CounterVec
}

// WithMetrics returns an httpip option that installs Prometheus-backed
// metrics using prom.DefaultRegisterer.
func WithMetrics() httpip.Option {
	return WithRegisterer(prom.DefaultRegisterer)
}

// WithRegisterer returns an httpip option that installs Prometheus-backed
// metrics using the provided registerer.
//
// Collectors are registered only when the resolver configuration is valid.
// If registerer is nil, prom.DefaultRegisterer is used.
func WithRegisterer(registerer prom.Registerer) httpip.Option {
	return httpip.WithMetricsFactory(func() (httpip.Metrics, error) {
		return NewWithRegisterer(registerer)
	})
}

// New creates PrometheusMetrics and registers its collectors on
// prom.DefaultRegisterer.
func New() (*PrometheusMetrics, error) {
	return NewWithRegisterer(prom.DefaultRegisterer)
}

// NewWithRegisterer creates PrometheusMetrics and registers its collectors on
// the given registerer.
//
// If registerer is nil, prom.DefaultRegisterer is used. If the metrics are
// already registered, existing compatible collectors are reused.
func NewWithRegisterer(registerer prom.Registerer) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}

	resolutionTotal, err := registerCounterVec(registerer, prom.NewCounterVec(
		prom.CounterOpts{
			Name: resolutionTotalName,
			Help: "Client IP resolutions by source (forwarded, x_forwarded_for, remote_addr) and result (success, failure).",
		},
		[]string{"source", "result"},
	), resolutionTotalName)
	if err != nil {
		return nil, err
	}

	securityEvents, err := registerCounterVec(registerer, prom.NewCounterVec(
		prom.CounterOpts{
			Name: securityEventsName,
			Help: "Security-related events during client IP resolution, labeled by event.",
		},
		[]string{"event"},
	), securityEventsName)
	if err != nil {
		return nil, err
	}

	return &PrometheusMetrics{
		resolutionTotal: resolutionTotal,
		securityEvents:  securityEvents,
	}, nil
}

func registerCounterVec(registerer prom.Registerer, collector *prom.CounterVec, metricName string) (*prom.CounterVec, error) {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prom.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(*prom.CounterVec)
			if ok {
				return existing, nil
			}
			return nil, fmt.Errorf("metric %q already registered with incompatible collector type %T", metricName, alreadyRegistered.ExistingCollector)
		}

		return nil, fmt.Errorf("register metric %q: %w", metricName, err)
	}

	return collector, nil
}

// RecordResolutionSuccess increments client_ip_resolution_total with
// result="success" for the provided source.
func (m *PrometheusMetrics) RecordResolutionSuccess(source string) {
	m.resolutionTotal.WithLabelValues(source, "success").Inc()
}

// RecordResolutionFailure increments client_ip_resolution_total with
// result="failure" for the provided source.
func (m *PrometheusMetrics) RecordResolutionFailure(source string) {
	m.resolutionTotal.WithLabelValues(source, "failure").Inc()
}

// RecordSecurityEvent increments client_ip_security_events_total for the
// provided event label.
func (m *PrometheusMetrics) RecordSecurityEvent(event string) {
	m.securityEvents.WithLabelValues(event).Inc()
}
