package httpip

import (
	"iter"
	"net/netip"
	"strings"
)

// ParseXForwardedForRev parses an X-Forwarded-For value lazily, rightmost
// token first.
//
// The value is split on ',' and each token is trimmed and parsed with
// ParseAddr. A token that is empty or is not an address yields a
// *ParseError at its position; parsing continues with the next token to the
// left so the consumer decides whether to skip or stop.
//
// Each range over the returned sequence re-reads value from the end.
func ParseXForwardedForRev(value string) iter.Seq2[netip.Addr, error] {
	return func(yield func(netip.Addr, error) bool) {
		rest := value
		for {
			comma := strings.LastIndexByte(rest, ',')
			token := rest[comma+1:]

			if !yield(ParseAddr(token)) {
				return
			}

			if comma < 0 {
				return
			}
			rest = rest[:comma]
		}
	}
}

// ParseXForwardedFor is ParseXForwardedForRev in wire order, leftmost token
// first.
func ParseXForwardedFor(value string) iter.Seq2[netip.Addr, error] {
	return func(yield func(netip.Addr, error) bool) {
		for token := range strings.SplitSeq(value, ",") {
			if !yield(ParseAddr(token)) {
				return
			}
		}
	}
}

// parseXFFValuesRev walks several X-Forwarded-For header lines as one
// chain, last line first.
func parseXFFValuesRev(values []string) iter.Seq2[netip.Addr, error] {
	return func(yield func(netip.Addr, error) bool) {
		for i := len(values) - 1; i >= 0; i-- {
			for addr, err := range ParseXForwardedForRev(values[i]) {
				if !yield(addr, err) {
					return
				}
			}
		}
	}
}
