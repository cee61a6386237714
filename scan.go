package httpip

import (
	"errors"
	"fmt"
	"iter"
	"net/netip"
)

// MalformedPolicy controls what a scan does with a token that failed to
// parse.
type MalformedPolicy int

const (
	// SkipMalformed ignores the token and keeps scanning, so noise inserted
	// into the chain does not block resolution. This is the default.
	SkipMalformed MalformedPolicy = iota + 1
	// AbortOnMalformed stops the scan with ErrMalformedToken.
	AbortOnMalformed
)

// String returns the canonical text representation of p.
func (p MalformedPolicy) String() string {
	switch p {
	case SkipMalformed:
		return "skip"
	case AbortOnMalformed:
		return "abort"
	default:
		return "unknown"
	}
}

// valid reports whether p is a supported policy.
func (p MalformedPolicy) valid() bool {
	return p == SkipMalformed || p == AbortOnMalformed
}

// ParseMalformedPolicy maps "skip" and "abort" to their policies.
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch s {
	case "skip":
		return SkipMalformed, nil
	case "abort":
		return AbortOnMalformed, nil
	default:
		return 0, parseError(s, errors.New("unknown malformed token policy"))
	}
}

// ScanEventKind identifies what a scan did with one element.
type ScanEventKind int

const (
	// ScanSkippedMalformed reports a token skipped under SkipMalformed.
	ScanSkippedMalformed ScanEventKind = iota + 1
	// ScanTrustedHop reports an address matched by the filter.
	ScanTrustedHop
)

// ScanEvent describes one element a scan stepped over.
type ScanEvent struct {
	Kind  ScanEventKind
	Index int
	Addr  netip.Addr
	Err   error
}

// ScanOption configures FindNextIPAfterFilter.
type ScanOption func(*scanConfig)

type scanConfig struct {
	policy   MalformedPolicy
	maxHops  int
	observer func(ScanEvent)
}

// ScanMalformedPolicy sets the policy for tokens that fail to parse.
func ScanMalformedPolicy(policy MalformedPolicy) ScanOption {
	return func(c *scanConfig) {
		if policy.valid() {
			c.policy = policy
		}
	}
}

// ScanMaxHops stops the scan with ErrChainTooLong once more than max
// elements have been consumed. Zero or a negative max means no limit.
func ScanMaxHops(max int) ScanOption {
	return func(c *scanConfig) {
		c.maxHops = max
	}
}

// ScanObserver registers a callback for every element the scan steps over.
func ScanObserver(observer func(ScanEvent)) ScanOption {
	return func(c *scanConfig) {
		c.observer = observer
	}
}

// FindNextIPAfterFilter returns the first address in addrs that filter does
// not match.
//
// Fed with ParseXForwardedForRev, this walks the chain from the proxy side
// inward, skips trusted hops and stops at the first untrusted one: the
// rightmost untrusted address of the header. The scan is a single pass and
// stops as soon as a result is known.
//
// Parse errors in addrs are skipped by default; see ScanMalformedPolicy.
// When every element is trusted or unparsable the error wraps ErrNotFound.
func FindNextIPAfterFilter(addrs iter.Seq2[netip.Addr, error], filter Filter, opts ...ScanOption) (netip.Addr, error) {
	addr, _, err := findNextIPAfterFilter(addrs, filter, opts...)
	return addr, err
}

// findNextIPAfterFilter also returns the number of trusted hops skipped.
func findNextIPAfterFilter(addrs iter.Seq2[netip.Addr, error], filter Filter, opts ...ScanOption) (netip.Addr, int, error) {
	cfg := scanConfig{policy: SkipMalformed}
	for _, opt := range opts {
		opt(&cfg)
	}

	trusted := 0
	index := 0
	for addr, err := range addrs {
		if cfg.maxHops > 0 && index >= cfg.maxHops {
			return netip.Addr{}, trusted, &FindError{Err: ErrChainTooLong, Index: index}
		}

		if err != nil {
			if cfg.policy == AbortOnMalformed {
				return netip.Addr{}, trusted, &FindError{
					Err:   fmt.Errorf("%w: %w", ErrMalformedToken, err),
					Index: index,
					Token: parseErrorInput(err),
				}
			}
			cfg.notify(ScanEvent{Kind: ScanSkippedMalformed, Index: index, Err: err})
			index++
			continue
		}

		if !matches(filter, addr) {
			return addr, trusted, nil
		}

		cfg.notify(ScanEvent{Kind: ScanTrustedHop, Index: index, Addr: addr})
		trusted++
		index++
	}

	return netip.Addr{}, trusted, &FindError{Err: ErrNotFound, Index: -1}
}

func (c scanConfig) notify(event ScanEvent) {
	if c.observer != nil {
		c.observer(event)
	}
}

func parseErrorInput(err error) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Input
	}
	return ""
}
