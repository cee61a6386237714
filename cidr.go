package httpip

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Cidr is a validated network range: a network address whose host bits are
// all zero and a prefix length within the family's width.
//
// The zero Cidr is invalid and contains no address.
type Cidr struct {
	network netip.Addr
	bits    int
}

// ParseCidr parses "<address>/<prefix>".
//
// The literal is split on the last '/'. The prefix must be plain decimal
// digits within 0-32 for IPv4 or 0-128 for IPv6, and the address must be
// the canonical network address: "198.51.100.0/24" is accepted,
// "198.51.100.5/24" is rejected with ErrHostBitsSet. Surrounding whitespace
// is not trimmed.
func ParseCidr(s string) (Cidr, error) {
	slash := strings.LastIndexByte(s, '/')
	if slash < 0 {
		return Cidr{}, parseError(s, ErrMissingPrefix)
	}

	addrText, prefixText := s[:slash], s[slash+1:]

	addr, err := netip.ParseAddr(addrText)
	if err != nil || addr.Zone() != "" {
		return Cidr{}, parseError(s, ErrInvalidAddress)
	}

	bits, err := parsePrefixLength(prefixText)
	if err != nil {
		return Cidr{}, parseError(s, err)
	}

	cidr, err := newCidr(addr, bits)
	if err != nil {
		return Cidr{}, parseError(s, err)
	}

	return cidr, nil
}

// MustParseCidr is like ParseCidr but panics on error. It is meant for
// compiled-in constants.
func MustParseCidr(s string) Cidr {
	cidr, err := ParseCidr(s)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", s, err))
	}
	return cidr
}

// NewCidr builds a Cidr from an address and a prefix length, with the same
// validation as ParseCidr.
func NewCidr(addr netip.Addr, bits int) (Cidr, error) {
	cidr, err := newCidr(addr, bits)
	if err != nil {
		return Cidr{}, parseError(addr.String()+"/"+strconv.Itoa(bits), err)
	}
	return cidr, nil
}

// CidrFromPrefix converts a netip.Prefix, rejecting prefixes with host bits
// set instead of masking them.
func CidrFromPrefix(prefix netip.Prefix) (Cidr, error) {
	if !prefix.IsValid() {
		return Cidr{}, parseError(prefix.String(), ErrInvalidAddress)
	}
	return NewCidr(prefix.Addr(), prefix.Bits())
}

// ParseCidrs parses each literal with ParseCidr.
func ParseCidrs(cidrs ...string) ([]Cidr, error) {
	parsed := make([]Cidr, 0, len(cidrs))
	for _, s := range cidrs {
		cidr, err := ParseCidr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		parsed = append(parsed, cidr)
	}
	return parsed, nil
}

func newCidr(addr netip.Addr, bits int) (Cidr, error) {
	family := FamilyOf(addr)
	if family == 0 || addr.Zone() != "" {
		return Cidr{}, ErrInvalidAddress
	}

	if bits < 0 || bits > family.BitLen() {
		return Cidr{}, ErrPrefixOutOfRange
	}

	if maskAddr(addr, bits) != addr {
		return Cidr{}, ErrHostBitsSet
	}

	return Cidr{network: addr, bits: bits}, nil
}

// parsePrefixLength accepts ASCII decimal digits only. The range check
// against the address family happens in newCidr.
func parsePrefixLength(s string) (int, error) {
	if s == "" {
		return 0, ErrInvalidPrefix
	}

	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ErrInvalidPrefix
		}
		// Anything past 128 is out of range for every family; stop growing.
		if n <= 128 {
			n = n*10 + int(c-'0')
		}
	}
	return n, nil
}

// IsValid reports whether c was produced by a successful constructor.
func (c Cidr) IsValid() bool {
	return c.network.IsValid()
}

// Family returns the address family of c.
func (c Cidr) Family() Family {
	return FamilyOf(c.network)
}

// Addr returns the network address of c.
func (c Cidr) Addr() netip.Addr {
	return c.network
}

// Bits returns the prefix length of c.
func (c Cidr) Bits() int {
	return c.bits
}

// Prefix returns c as a netip.Prefix.
func (c Cidr) Prefix() netip.Prefix {
	if !c.IsValid() {
		return netip.Prefix{}
	}
	return netip.PrefixFrom(c.network, c.bits)
}

// Contains reports whether addr lies inside c.
//
// Addresses of the other family never match: an IPv4 Cidr does not contain
// IPv4-mapped IPv6 addresses and vice versa.
func (c Cidr) Contains(addr netip.Addr) bool {
	if !c.IsValid() || !addr.IsValid() {
		return false
	}
	if FamilyOf(addr) != c.Family() {
		return false
	}
	return maskAddr(addr.WithZone(""), c.bits) == c.network
}

// Match implements Filter.
func (c Cidr) Match(addr netip.Addr) bool {
	return c.Contains(addr)
}

// String returns the canonical "addr/bits" form, or "invalid CIDR" for the
// zero value.
func (c Cidr) String() string {
	if !c.IsValid() {
		return "invalid CIDR"
	}
	return c.network.String() + "/" + strconv.Itoa(c.bits)
}

// MarshalText implements encoding.TextMarshaler.
func (c Cidr) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return []byte(""), nil
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseCidr.
// Empty input yields the zero Cidr.
func (c *Cidr) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = Cidr{}
		return nil
	}

	parsed, err := ParseCidr(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// maskAddr clears every bit of addr past the first bits bits, using the
// native width of the address family.
func maskAddr(addr netip.Addr, bits int) netip.Addr {
	if addr.Is4() {
		b := addr.As4()
		v := binary.BigEndian.Uint32(b[:]) & mask32(bits)
		binary.BigEndian.PutUint32(b[:], v)
		return netip.AddrFrom4(b)
	}

	b := addr.As16()
	hi, lo := mask128(bits)
	binary.BigEndian.PutUint64(b[:8], binary.BigEndian.Uint64(b[:8])&hi)
	binary.BigEndian.PutUint64(b[8:], binary.BigEndian.Uint64(b[8:])&lo)
	return netip.AddrFrom16(b)
}

// mask32 returns a mask with the top bits bits set. Go defines shifts by
// the full width as zero, so bits == 0 yields 0 and bits == 32 shifts by
// zero and yields all ones.
func mask32(bits int) uint32 {
	return ^uint32(0) << uint(32-bits)
}

// mask128 returns the high and low halves of a 128-bit mask with the top
// bits bits set.
func mask128(bits int) (hi, lo uint64) {
	if bits <= 64 {
		return ^uint64(0) << uint(64-bits), 0
	}
	return ^uint64(0), ^uint64(0) << uint(128-bits)
}
