// Package httpip determines the client IP address of an HTTP request that
// reached the application through one or more trusted proxies.
//
// Forwarding headers such as X-Forwarded-For list, left to right, every hop
// a request traversed. The leftmost entry is supplied by the client and can
// be anything; the rightmost is the nearest proxy. httpip walks the list
// from the proxy side inward, skips addresses inside the operator's trusted
// ranges and returns the first one outside them.
//
// # Core
//
// The building blocks are usable on their own:
//
//	trusted := httpip.MustParseCidr("198.51.100.0/24")
//
//	addrs := httpip.ParseXForwardedForRev("203.0.113.1, 198.51.100.5")
//	client, err := httpip.FindNextIPAfterFilter(addrs, trusted)
//	// client == 203.0.113.1
//
// ParseCidr accepts only canonical network addresses: "198.51.100.5/24" is
// rejected so that a typo cannot silently widen or shift a trusted range.
// Cidr.Contains never matches across address families. CidrSet holds many
// ranges behind one Filter, and Or, Any, AddrFilter and FilterFunc compose
// custom trust rules.
//
// Malformed chain tokens are skipped by default. Pass
// ScanMalformedPolicy(AbortOnMalformed) to treat them as fatal.
//
// # Resolver
//
// Resolver wraps the core with header selection, RFC 7239 Forwarded
// support, a chain length bound, logging and metrics:
//
//	resolver, err := httpip.New(
//	    httpip.TrustedCidrs("10.0.0.0/8", "2001:db8::/32"),
//	    httpip.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resolution, err := resolver.ResolveRequest(req)
//
// Middleware stores the result in the request context for FromContext. The
// grpcip package provides gRPC interceptors and the prometheus package a
// Prometheus-backed Metrics implementation.
//
// # Thread Safety
//
// Cidr, CidrSet and Resolver values are immutable after construction and
// safe for concurrent use. The parsing and scanning functions keep no
// state between calls.
package httpip
