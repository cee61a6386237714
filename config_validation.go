package httpip

import (
	"fmt"
	"reflect"
	"strings"
)

func (c *config) validate() error {
	if c.maxChainLength <= 0 {
		return fmt.Errorf("maxChainLength must be > 0, got %d", c.maxChainLength)
	}
	if !c.malformedPolicy.valid() {
		return fmt.Errorf("invalid malformed token policy %d (must be SkipMalformed=1 or AbortOnMalformed=2)", c.malformedPolicy)
	}
	if len(c.headerPriority) == 0 {
		return fmt.Errorf("at least one header required in priority list")
	}
	if err := c.validateHeaderPriority(); err != nil {
		return err
	}
	for _, cidr := range c.trustedCidrs {
		if !cidr.IsValid() {
			return fmt.Errorf("invalid trusted CIDR %q", cidr)
		}
	}

	if isNilLogger(c.logger) {
		return fmt.Errorf("logger cannot be nil")
	}
	if !c.useMetricsFactory && isNilMetrics(c.metrics) {
		return fmt.Errorf("metrics cannot be nil")
	}
	return nil
}

func (c *config) validateHeaderPriority() error {
	seen := make(map[string]struct{}, len(c.headerPriority))

	for _, header := range c.headerPriority {
		normalized := NormalizeSourceName(strings.TrimSpace(header))
		if normalized == "" {
			return fmt.Errorf("header names cannot be empty")
		}
		if normalized == SourceRemoteAddr {
			return fmt.Errorf("%q is not a header; use WithRemoteAddrFallback", header)
		}

		if _, ok := seen[normalized]; ok {
			return fmt.Errorf("duplicate header %q in priority list", header)
		}
		seen[normalized] = struct{}{}
	}

	return nil
}

func isNilLogger(logger Logger) bool {
	return isNilInterface(logger)
}

func isNilMetrics(metrics Metrics) bool {
	return isNilInterface(metrics)
}

func isNilInterface(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
