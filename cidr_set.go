package httpip

import (
	"net/netip"
	"strings"
)

// CidrSet is an immutable collection of Cidrs compiled into one binary
// prefix trie per address family. Lookups cost at most one step per address
// bit regardless of how many ranges the set holds.
//
// The zero CidrSet is empty and matches nothing.
type CidrSet struct {
	cidrs    []Cidr
	ipv4Root *prefixTrieNode
	ipv6Root *prefixTrieNode
}

type prefixTrieNode struct {
	children [2]*prefixTrieNode
	terminal bool
}

// NewCidrSet builds a set from cidrs. Invalid (zero) Cidrs and duplicates
// are dropped.
func NewCidrSet(cidrs ...Cidr) CidrSet {
	set := CidrSet{}
	seen := make(map[Cidr]struct{}, len(cidrs))

	for _, cidr := range cidrs {
		if !cidr.IsValid() {
			continue
		}
		if _, ok := seen[cidr]; ok {
			continue
		}
		seen[cidr] = struct{}{}
		set.cidrs = append(set.cidrs, cidr)

		if cidr.Family() == FamilyV4 {
			if set.ipv4Root == nil {
				set.ipv4Root = &prefixTrieNode{}
			}

			bytes := cidr.Addr().As4()
			insertPrefix(set.ipv4Root, bytes[:], cidr.Bits())
			continue
		}

		if set.ipv6Root == nil {
			set.ipv6Root = &prefixTrieNode{}
		}

		bytes := cidr.Addr().As16()
		insertPrefix(set.ipv6Root, bytes[:], cidr.Bits())
	}

	return set
}

// ParseCidrSet parses each literal with ParseCidr and builds a set.
func ParseCidrSet(cidrs ...string) (CidrSet, error) {
	parsed, err := ParseCidrs(cidrs...)
	if err != nil {
		return CidrSet{}, err
	}
	return NewCidrSet(parsed...), nil
}

// Len returns the number of distinct ranges in s.
func (s CidrSet) Len() int {
	return len(s.cidrs)
}

// Cidrs returns a copy of the ranges in s, in insertion order.
func (s CidrSet) Cidrs() []Cidr {
	if s.cidrs == nil {
		return nil
	}
	cloned := make([]Cidr, len(s.cidrs))
	copy(cloned, s.cidrs)
	return cloned
}

// Contains reports whether any range in s contains addr.
func (s CidrSet) Contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}

	if addr.Is4() {
		bytes := addr.As4()
		return trieContains(s.ipv4Root, bytes[:])
	}

	bytes := addr.As16()
	return trieContains(s.ipv6Root, bytes[:])
}

// Match implements Filter.
func (s CidrSet) Match(addr netip.Addr) bool {
	return s.Contains(addr)
}

// String lists the ranges of s separated by commas.
func (s CidrSet) String() string {
	parts := make([]string, len(s.cidrs))
	for i, cidr := range s.cidrs {
		parts[i] = cidr.String()
	}
	return strings.Join(parts, ",")
}

func insertPrefix(root *prefixTrieNode, addr []byte, bits int) {
	node := root
	if bits == 0 {
		node.terminal = true
		return
	}

	for bitIndex := range bits {
		bit := addrBit(addr, bitIndex)
		child := node.children[bit]
		if child == nil {
			child = &prefixTrieNode{}
			node.children[bit] = child
		}
		node = child
	}

	node.terminal = true
}

func trieContains(root *prefixTrieNode, addr []byte) bool {
	node := root
	if node == nil {
		return false
	}

	if node.terminal {
		return true
	}

	for bitIndex := range len(addr) * 8 {
		node = node.children[addrBit(addr, bitIndex)]
		if node == nil {
			return false
		}
		if node.terminal {
			return true
		}
	}

	return false
}

func addrBit(addr []byte, bitIndex int) int {
	byteIndex := bitIndex / 8
	shift := uint(7 - (bitIndex % 8))
	return int((addr[byteIndex] >> shift) & 1)
}
