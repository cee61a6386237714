package httpip

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/netip"
)

// Resolver finds the client address of a request from its forwarding
// headers, skipping hops inside the configured trusted ranges.
//
// Resolver instances are immutable and safe for concurrent reuse. They are
// typically created once at startup from static configuration.
type Resolver struct {
	config *config
	filter Filter
}

// New creates a Resolver from one or more Option builders.
func New(opts ...Option) (*Resolver, error) {
	cfg, err := configFromOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Resolver{config: cfg, filter: cfg.filter()}, nil
}

// Filter returns the trust filter applied to chain entries.
func (r *Resolver) Filter() Filter {
	return r.filter
}

// Resolve returns the client address from the first configured forwarding
// header present in headers.
//
// Header lines are walked last line first and each line right to left. A
// Forwarded header without any for= node is treated as absent.
// Trusted hops are skipped and the first untrusted address is returned. A
// Forwarded node that is "unknown" or obfuscated stops the walk with
// ErrObfuscated, since nothing to its left can be attributed.
//
// Errors other than ErrHeaderAbsent are *HeaderError values wrapping
// ErrNotFound, ErrObfuscated, ErrMalformedToken or ErrChainTooLong. The
// returned Resolution carries Source and TrustedHops even on error.
func (r *Resolver) Resolve(ctx context.Context, headers HeaderValues) (Resolution, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	for _, header := range r.config.headerPriority {
		values := headerValues(headers, header)
		if len(values) == 0 {
			continue
		}

		if header == HeaderForwarded {
			if !hasForwardedNode(values) {
				continue
			}
			return r.resolveForwarded(ctx, values)
		}
		return r.resolveChain(ctx, header, values)
	}

	return Resolution{}, ErrHeaderAbsent
}

// ResolveAddr is Resolve returning only the address.
func (r *Resolver) ResolveAddr(ctx context.Context, headers HeaderValues) (netip.Addr, error) {
	resolution, err := r.Resolve(ctx, headers)
	if err != nil {
		return netip.Addr{}, err
	}
	return resolution.Addr, nil
}

// ClientIP resolves a single X-Forwarded-For style value.
func (r *Resolver) ClientIP(ctx context.Context, value string) (netip.Addr, error) {
	resolution, err := r.resolveChain(ctx, HeaderXForwardedFor, []string{value})
	if err != nil {
		return netip.Addr{}, err
	}
	return resolution.Addr, nil
}

// ResolveRequest resolves the client of req from its headers.
//
// When no header is present, every hop is trusted, or the chain ends in an
// obfuscated node, ResolveRequest falls back to req.RemoteAddr unless
// WithRemoteAddrFallback(false) was given. Malformed or oversized chains
// never fall back.
func (r *Resolver) ResolveRequest(req *http.Request) (Resolution, error) {
	if req == nil {
		return Resolution{}, ErrHeaderAbsent
	}

	return r.ResolveWithRemoteAddr(req.Context(), req.Header, req.RemoteAddr)
}

// ResolveWithRemoteAddr is ResolveRequest for transports other than
// net/http. remoteAddr is the peer address of the connection, in "ip",
// "ip:port" or "[ip]:port" form.
func (r *Resolver) ResolveWithRemoteAddr(ctx context.Context, headers HeaderValues, remoteAddr string) (Resolution, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	resolution, err := r.Resolve(ctx, headers)
	if err == nil || !r.config.remoteAddrFallback || !fallbackAllowed(err) {
		return resolution, err
	}

	if remoteAddr == "" {
		return resolution, err
	}

	addr, parseErr := parseHostAddr(remoteAddr)
	if parseErr != nil {
		r.config.metrics.RecordSecurityEvent(securityEventInvalidRemote)
		r.logSecurityWarning(ctx, SourceRemoteAddr, securityEventInvalidRemote, "unparsable remote address",
			"remote_addr", remoteAddr,
		)
		r.config.metrics.RecordResolutionFailure(SourceRemoteAddr)
		return resolution, errors.Join(err, parseErr)
	}

	r.config.metrics.RecordResolutionSuccess(SourceRemoteAddr)
	return Resolution{
		Addr:        addr,
		Source:      SourceRemoteAddr,
		TrustedHops: resolution.TrustedHops,
	}, nil
}

func fallbackAllowed(err error) bool {
	return errors.Is(err, ErrHeaderAbsent) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrObfuscated)
}

// Leftmost returns the first address of the first configured header
// present, with no trust filtering.
//
// The leftmost entry is supplied by the client and is trivially spoofed;
// prefer Resolve. It reports false when the entry is missing, malformed or
// obfuscated.
func (r *Resolver) Leftmost(headers HeaderValues) (netip.Addr, bool) {
	return r.edgeAddr(headers, true)
}

// Rightmost returns the last address of the first configured header
// present, with no trust filtering. It is the address written by the
// nearest proxy. It reports false when the entry is missing, malformed or
// obfuscated.
func (r *Resolver) Rightmost(headers HeaderValues) (netip.Addr, bool) {
	return r.edgeAddr(headers, false)
}

func (r *Resolver) edgeAddr(headers HeaderValues, leftmost bool) (netip.Addr, bool) {
	for _, header := range r.config.headerPriority {
		values := headerValues(headers, header)
		if len(values) == 0 {
			continue
		}

		if header == HeaderForwarded {
			if !hasForwardedNode(values) {
				continue
			}
			nodes := ParseForwardedForRev(values[len(values)-1])
			if leftmost {
				nodes = ParseForwardedFor(values[0])
			}
			for node := range nodes {
				return node.IP()
			}
			return netip.Addr{}, false
		}

		addrs := ParseXForwardedForRev(values[len(values)-1])
		if leftmost {
			addrs = ParseXForwardedFor(values[0])
		}
		for addr, err := range addrs {
			return addr, err == nil
		}
		return netip.Addr{}, false
	}

	return netip.Addr{}, false
}

// hasForwardedNode reports whether any line of values carries a for= node.
func hasForwardedNode(values []string) bool {
	for range parseForwardedValuesRev(values) {
		return true
	}
	return false
}

func (r *Resolver) resolveChain(ctx context.Context, header string, values []string) (Resolution, error) {
	return r.scan(ctx, header, values, parseXFFValuesRev(values), nil)
}

func (r *Resolver) resolveForwarded(ctx context.Context, values []string) (Resolution, error) {
	var stop *ForwardedNode
	addrs := func(yield func(netip.Addr, error) bool) {
		for node := range parseForwardedValuesRev(values) {
			if addr, ok := node.IP(); ok {
				if !yield(addr, nil) {
					return
				}
				continue
			}
			stop = &node
			return
		}
	}

	return r.scan(ctx, HeaderForwarded, values, addrs, func() *ForwardedNode { return stop })
}

// scan runs the filter scan over addrs and turns its outcome into metrics,
// warnings and a Resolution. stopped reports the Forwarded node that ended
// addrs early, if any.
func (r *Resolver) scan(
	ctx context.Context,
	header string,
	values []string,
	addrs iter.Seq2[netip.Addr, error],
	stopped func() *ForwardedNode,
) (Resolution, error) {
	source := NormalizeSourceName(header)

	observer := func(event ScanEvent) {
		if event.Kind != ScanSkippedMalformed {
			return
		}
		r.config.metrics.RecordSecurityEvent(securityEventMalformedToken)
		r.logSecurityWarning(ctx, source, securityEventMalformedToken, "skipped malformed token in forwarding chain",
			"index", event.Index,
			"token", parseErrorInput(event.Err),
		)
	}

	addr, hops, err := findNextIPAfterFilter(addrs, r.filter, r.config.scanOptions(observer)...)
	resolution := Resolution{Source: source, TrustedHops: hops}

	if err == nil {
		r.config.metrics.RecordResolutionSuccess(source)
		resolution.Addr = addr
		return resolution, nil
	}

	if stopped != nil && errors.Is(err, ErrNotFound) {
		if node := stopped(); node != nil {
			err = &FindError{Err: ErrObfuscated, Index: hops, Token: node.String()}
		}
	}

	r.logScanFailure(ctx, source, values, hops, err)
	r.config.metrics.RecordResolutionFailure(source)
	return resolution, &HeaderError{Err: err, Header: header}
}

func (r *Resolver) logScanFailure(ctx context.Context, source string, values []string, hops int, err error) {
	chain := FormatHeaderValues(values)

	switch {
	case errors.Is(err, ErrChainTooLong):
		r.config.metrics.RecordSecurityEvent(securityEventChainTooLong)
		r.logSecurityWarning(ctx, source, securityEventChainTooLong, "forwarding chain exceeds configured maximum length",
			"max_length", r.config.maxChainLength,
		)
	case errors.Is(err, ErrMalformedToken):
		r.config.metrics.RecordSecurityEvent(securityEventMalformedToken)
		r.logSecurityWarning(ctx, source, securityEventMalformedToken, "malformed token in forwarding chain",
			"chain", chain,
			"error", err.Error(),
		)
	case errors.Is(err, ErrObfuscated):
		r.config.metrics.RecordSecurityEvent(securityEventObfuscatedNode)
		r.logSecurityWarning(ctx, source, securityEventObfuscatedNode, "forwarding chain reached an obfuscated node",
			"chain", chain,
			"trusted_hops", hops,
		)
	case errors.Is(err, ErrNotFound):
		r.config.metrics.RecordSecurityEvent(securityEventAllTrusted)
		r.logSecurityWarning(ctx, source, securityEventAllTrusted, "no untrusted address in forwarding chain",
			"chain", chain,
			"trusted_hops", hops,
		)
	}
}

func (r *Resolver) logSecurityWarning(ctx context.Context, source, event, msg string, attrs ...any) {
	baseAttrs := []any{
		"event", event,
		"source", source,
	}

	baseAttrs = append(baseAttrs, attrs...)
	r.config.logger.WarnContext(ctx, msg, baseAttrs...)
}
