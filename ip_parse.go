package httpip

import (
	"net/netip"
	"strings"
)

// Family is an IP address family.
type Family int

const (
	// Start at 1 so the zero value is an explicit "no family".
	//
	// FamilyV4 is IPv4, 32-bit addresses.
	FamilyV4 Family = iota + 1
	// FamilyV6 is IPv6, 128-bit addresses. IPv4-mapped IPv6 addresses
	// belong to this family.
	FamilyV6
)

// String returns the canonical text representation of f.
func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// BitLen returns the address width of f in bits, or 0 for an unknown family.
func (f Family) BitLen() int {
	switch f {
	case FamilyV4:
		return 32
	case FamilyV6:
		return 128
	default:
		return 0
	}
}

// FamilyOf returns the family of addr, or 0 when addr is invalid.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case addr.Is4():
		return FamilyV4
	case addr.Is6():
		return FamilyV6
	default:
		return 0
	}
}

// ParseAddr parses one forwarding-chain token.
//
// Surrounding ASCII whitespace is trimmed and one pair of enclosing brackets
// is removed from IPv6 literals, so "[2001:db8::1]" parses as an IPv6
// address while "[192.0.2.1]" is rejected. Ports, quotes and IPv6 zones are
// not accepted. IPv4-mapped IPv6 addresses keep their IPv6 family.
func ParseAddr(token string) (netip.Addr, error) {
	s := trimHTTPWhitespace(token)
	if s == "" {
		return netip.Addr{}, parseError(token, ErrEmptyToken)
	}

	unbracketed := trimMatchedPair(s, '[', ']')

	addr, err := netip.ParseAddr(unbracketed)
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, parseError(token, ErrInvalidAddress)
	}
	if unbracketed != s && !addr.Is6() {
		return netip.Addr{}, parseError(token, ErrInvalidAddress)
	}

	return addr, nil
}

// parseHostAddr parses a host value that may carry a port, as found in
// Forwarded for= parameters and RemoteAddr: "1.2.3.4:80", "[::1]:80",
// "[::1]" or a bare address.
func parseHostAddr(s string) (netip.Addr, error) {
	s = trimHTTPWhitespace(s)
	if s == "" {
		return netip.Addr{}, parseError(s, ErrEmptyToken)
	}

	if addrPort, err := netip.ParseAddrPort(s); err == nil {
		if addrPort.Addr().Zone() != "" {
			return netip.Addr{}, parseError(s, ErrInvalidAddress)
		}
		return addrPort.Addr(), nil
	}

	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end > 0 {
			return ParseAddr(s[:end+1])
		}
	}

	return ParseAddr(s)
}

// trimHTTPWhitespace trims ASCII whitespace (space, tab, LF, FF, CR) around
// list elements in header values.
func trimHTTPWhitespace(s string) string {
	return strings.Trim(s, " \t\n\f\r")
}

// trimMatchedPair removes one leading and trailing delimiter when both match.
func trimMatchedPair(s string, start, end byte) string {
	if len(s) < 2 {
		return s
	}

	if s[0] != start || s[len(s)-1] != end {
		return s
	}

	return s[1 : len(s)-1]
}
