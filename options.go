package httpip

import (
	"fmt"
	"net/netip"
)

// TrustCidrs adds trusted proxy ranges.
func TrustCidrs(cidrs ...Cidr) Option {
	cidrs = cloneCidrs(cidrs)

	return func(c *config) error {
		for _, cidr := range cidrs {
			if !cidr.IsValid() {
				return fmt.Errorf("invalid trusted CIDR %q", cidr)
			}
		}

		appendTrustedCidrs(c, cidrs...)
		return nil
	}
}

// TrustedCidrs parses CIDR literals with ParseCidr and adds them as trusted
// proxy ranges. A literal that fails to parse fails New.
func TrustedCidrs(cidrs ...string) Option {
	cidrs = cloneStrings(cidrs)

	return func(c *config) error {
		parsed, err := ParseCidrs(cidrs...)
		if err != nil {
			return err
		}

		appendTrustedCidrs(c, parsed...)
		return nil
	}
}

// TrustCidrSet adds every range of set as trusted.
func TrustCidrSet(set CidrSet) Option {
	return TrustCidrs(set.Cidrs()...)
}

// TrustLoopbackProxy adds loopback ranges to the trusted proxy ranges.
func TrustLoopbackProxy() Option {
	return func(c *config) error {
		appendTrustedCidrs(c, loopbackProxyCidrs...)
		return nil
	}
}

// TrustPrivateProxyRanges adds private network ranges to the trusted proxy
// ranges.
func TrustPrivateProxyRanges() Option {
	return func(c *config) error {
		appendTrustedCidrs(c, privateProxyCidrs...)
		return nil
	}
}

// TrustLocalProxyDefaults adds loopback and private network ranges.
func TrustLocalProxyDefaults() Option {
	return func(c *config) error {
		appendTrustedCidrs(c, loopbackProxyCidrs...)
		appendTrustedCidrs(c, privateProxyCidrs...)
		return nil
	}
}

// TrustProxyAddrs adds single trusted proxy host addresses.
func TrustProxyAddrs(addrs ...netip.Addr) Option {
	addrs = cloneAddrs(addrs)

	return func(c *config) error {
		cidrs := make([]Cidr, 0, len(addrs))
		for _, addr := range addrs {
			cidr, err := NewCidr(addr.WithZone(""), FamilyOf(addr).BitLen())
			if err != nil {
				return fmt.Errorf("invalid proxy address %q: %w", addr, err)
			}
			cidrs = append(cidrs, cidr)
		}

		appendTrustedCidrs(c, cidrs...)
		return nil
	}
}

// WithFilter adds a custom trust predicate. An address is trusted when it
// lies in a trusted range or filter matches it.
func WithFilter(filter Filter) Option {
	return func(c *config) error {
		if isNilInterface(filter) {
			return fmt.Errorf("filter cannot be nil")
		}
		if c.extraFilter == nil {
			c.extraFilter = filter
			return nil
		}
		c.extraFilter = Or(c.extraFilter, filter)
		return nil
	}
}

// WithMalformedPolicy sets what happens to chain tokens that fail to parse.
// The default is SkipMalformed.
func WithMalformedPolicy(policy MalformedPolicy) Option {
	return func(c *config) error {
		c.malformedPolicy = policy
		return nil
	}
}

// MaxChainLength sets the maximum number of chain entries walked per
// lookup.
func MaxChainLength(max int) Option {
	return func(c *config) error {
		c.maxChainLength = max
		return nil
	}
}

// Priority sets the forwarding headers consulted, in order. The first
// header present on a request is used and the rest are ignored.
//
// "Forwarded" is parsed with RFC 7239 rules; every other header is parsed
// as an X-Forwarded-For style comma-separated list. The default is
// Forwarded, then X-Forwarded-For.
func Priority(headers ...string) Option {
	resolved := make([]string, len(headers))
	for i, header := range headers {
		resolved[i] = canonicalHeaderName(header)
	}

	return func(c *config) error {
		c.headerPriority = cloneStrings(resolved)
		return nil
	}
}

// WithRemoteAddrFallback controls whether ResolveRequest falls back to the
// transport peer address when no header yields a client. Enabled by
// default.
func WithRemoteAddrFallback(enable bool) Option {
	return func(c *config) error {
		c.remoteAddrFallback = enable
		return nil
	}
}

// WithLogger sets the logger implementation used for warning events.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics sets a concrete metrics implementation.
//
// If previously configured, a metrics factory is disabled.
func WithMetrics(metrics Metrics) Option {
	return func(c *config) error {
		c.metrics = metrics
		c.metricsFactory = nil
		c.useMetricsFactory = false
		return nil
	}
}

// WithMetricsFactory configures a lazy metrics constructor.
//
// The factory is invoked only for the final winning metrics option after
// option validation succeeds.
func WithMetricsFactory(factory func() (Metrics, error)) Option {
	return func(c *config) error {
		if factory == nil {
			return fmt.Errorf("metrics factory cannot be nil")
		}

		c.metricsFactory = factory
		c.useMetricsFactory = true
		return nil
	}
}
