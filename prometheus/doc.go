// Package prometheus provides a Prometheus-backed httpip.Metrics.
//
// The package exposes httpip options that install the metrics on a
// Resolver, using either the default registerer or a caller-provided one.
package prometheus
