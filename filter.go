package httpip

import "net/netip"

// Filter decides whether an address belongs to the operator's own
// infrastructure. Matching addresses are skipped when searching a
// forwarding chain for the client.
//
// Cidr, CidrSet, AddrFilter and FilterFunc implement Filter, and Or and Any
// combine them. Filters are read-only and safe for concurrent use.
type Filter interface {
	Match(addr netip.Addr) bool
}

// FilterFunc adapts a predicate to the Filter interface.
type FilterFunc func(addr netip.Addr) bool

// Match implements Filter. A nil FilterFunc matches nothing.
func (f FilterFunc) Match(addr netip.Addr) bool {
	if f == nil {
		return false
	}
	return f(addr)
}

// AddrFilter matches exactly one address.
type AddrFilter netip.Addr

// Match implements Filter.
func (a AddrFilter) Match(addr netip.Addr) bool {
	want := netip.Addr(a)
	return want.IsValid() && want == addr
}

// MatchNone is a Filter that trusts nothing, so a scan returns the
// rightmost parseable address.
var MatchNone Filter = FilterFunc(func(netip.Addr) bool { return false })

type orFilter struct {
	left, right Filter
}

func (f orFilter) Match(addr netip.Addr) bool {
	return matches(f.left, addr) || matches(f.right, addr)
}

// Or combines two filters: an address matches if either matches.
func Or(left, right Filter) Filter {
	return orFilter{left: left, right: right}
}

type anyFilter []Filter

func (f anyFilter) Match(addr netip.Addr) bool {
	for _, filter := range f {
		if matches(filter, addr) {
			return true
		}
	}
	return false
}

// Any combines filters: an address matches if any of them matches. Any with
// no filters matches nothing.
func Any(filters ...Filter) Filter {
	cloned := make(anyFilter, 0, len(filters))
	for _, filter := range filters {
		if filter != nil {
			cloned = append(cloned, filter)
		}
	}
	return cloned
}

func matches(filter Filter, addr netip.Addr) bool {
	if isNilInterface(filter) {
		return false
	}
	return filter.Match(addr)
}
