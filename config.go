package httpip

import (
	"fmt"
	"net/netip"
)

const (
	// DefaultMaxChainLength is the maximum number of entries walked in one
	// forwarding chain. It bounds the work an oversized header can cause;
	// real chains rarely exceed 5-10 hops.
	DefaultMaxChainLength = 100
)

// Option configures a Resolver.
//
// Construct options using package-provided option builder functions.
type Option func(*config) error

// config holds resolver configuration state.
//
// It is mutated by Option functions during construction only.
type config struct {
	trustedCidrs []Cidr
	trusted      CidrSet
	extraFilter  Filter

	malformedPolicy    MalformedPolicy
	maxChainLength     int
	headerPriority     []string
	remoteAddrFallback bool

	logger  Logger
	metrics Metrics

	metricsFactory    func() (Metrics, error)
	useMetricsFactory bool
}

var (
	// loopbackProxyCidrs contains loopback networks used when the app sits
	// behind a reverse proxy running on the same host.
	loopbackProxyCidrs = []Cidr{
		MustParseCidr("127.0.0.0/8"),
		MustParseCidr("::1/128"),
	}

	// privateProxyCidrs contains private-network ranges commonly used for
	// trusted upstream proxies in VM and internal network deployments.
	privateProxyCidrs = []Cidr{
		MustParseCidr("10.0.0.0/8"),
		MustParseCidr("172.16.0.0/12"),
		MustParseCidr("192.168.0.0/16"),
		MustParseCidr("fc00::/7"),
	}
)

func cloneCidrs(cidrs []Cidr) []Cidr {
	if cidrs == nil {
		return nil
	}
	cloned := make([]Cidr, len(cidrs))
	copy(cloned, cidrs)
	return cloned
}

func cloneAddrs(addrs []netip.Addr) []netip.Addr {
	if addrs == nil {
		return nil
	}
	cloned := make([]netip.Addr, len(addrs))
	copy(cloned, addrs)
	return cloned
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	cloned := make([]string, len(values))
	copy(cloned, values)
	return cloned
}

func mergeUniqueCidrs(existing []Cidr, additions ...Cidr) []Cidr {
	if len(existing) == 0 && len(additions) == 0 {
		return nil
	}

	merged := make([]Cidr, 0, len(existing)+len(additions))
	seen := make(map[Cidr]struct{}, len(existing)+len(additions))

	for _, group := range [][]Cidr{existing, additions} {
		for _, cidr := range group {
			if _, ok := seen[cidr]; ok {
				continue
			}
			seen[cidr] = struct{}{}
			merged = append(merged, cidr)
		}
	}

	return merged
}

func appendTrustedCidrs(c *config, cidrs ...Cidr) {
	if len(cidrs) == 0 {
		return
	}

	c.trustedCidrs = mergeUniqueCidrs(c.trustedCidrs, cidrs...)
}

func defaultConfig() *config {
	return &config{
		malformedPolicy:    SkipMalformed,
		maxChainLength:     DefaultMaxChainLength,
		headerPriority:     []string{HeaderForwarded, HeaderXForwardedFor},
		remoteAddrFallback: true,
		logger:             noopLogger{},
		metrics:            noopMetrics{},
	}
}

func applyOptions(c *config, opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return err
		}
	}

	return nil
}

func configFromOptions(opts ...Option) (*config, error) {
	cfg := defaultConfig()

	if err := applyOptions(cfg, opts...); err != nil {
		return nil, err
	}

	if cfg.useMetricsFactory && cfg.metricsFactory == nil {
		return nil, fmt.Errorf("metrics factory cannot be nil")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// The factory runs only once the rest of the configuration is known to
	// be valid, so a rejected config never registers collectors.
	if cfg.useMetricsFactory {
		metrics, err := cfg.metricsFactory()
		if err != nil {
			return nil, err
		}
		cfg.metrics = metrics

		if isNilMetrics(cfg.metrics) {
			return nil, fmt.Errorf("metrics cannot be nil")
		}
	}

	cfg.trusted = NewCidrSet(cfg.trustedCidrs...)

	return cfg, nil
}

// filter returns the combined trust filter of c.
func (c *config) filter() Filter {
	if c.extraFilter == nil {
		return c.trusted
	}
	return Or(c.trusted, c.extraFilter)
}

func (c *config) scanOptions(observer func(ScanEvent)) []ScanOption {
	return []ScanOption{
		ScanMalformedPolicy(c.malformedPolicy),
		ScanMaxHops(c.maxChainLength),
		ScanObserver(observer),
	}
}
