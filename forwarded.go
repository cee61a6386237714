package httpip

import (
	"iter"
	"net/netip"
	"strings"
)

// NodeKind classifies a Forwarded for= value.
type NodeKind int

const (
	// NodeIP is a for= value carrying an IP address.
	NodeIP NodeKind = iota + 1
	// NodeName is an obfuscated identifier such as "_hidden", or any value
	// that is not an address.
	NodeName
	// NodeUnknown is the literal "unknown": the proxy could not tell the
	// previous hop.
	NodeUnknown
)

// String returns the canonical text representation of k.
func (k NodeKind) String() string {
	switch k {
	case NodeIP:
		return "ip"
	case NodeName:
		return "name"
	case NodeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ForwardedNode is one for= value of an RFC 7239 Forwarded header.
//
// See https://datatracker.ietf.org/doc/html/rfc7239#section-6
type ForwardedNode struct {
	Kind NodeKind
	// Addr is set when Kind is NodeIP. Any port is dropped.
	Addr netip.Addr
	// Name is the raw identifier when Kind is NodeName.
	Name string
}

// IP returns the node's address and whether it has one.
func (n ForwardedNode) IP() (netip.Addr, bool) {
	return n.Addr, n.Kind == NodeIP
}

// String renders the node the way it would appear after for=, without
// quoting. Unknown nodes render as "-".
func (n ForwardedNode) String() string {
	switch n.Kind {
	case NodeIP:
		return n.Addr.String()
	case NodeName:
		return n.Name
	case NodeUnknown:
		return "-"
	default:
		return ""
	}
}

// ParseForwardedFor yields the for= nodes of a Forwarded header value in
// wire order.
//
// Elements are split on ',' and parameters on ';', with quoted strings
// respected. Parameters other than for are ignored, as are parameters that
// are not key=value pairs. Parsing is lenient and does not validate the
// full RFC 7239 grammar.
func ParseForwardedFor(value string) iter.Seq[ForwardedNode] {
	return func(yield func(ForwardedNode) bool) {
		scanForwardedSegments(value, func(param string) bool {
			node, ok := parseForwardedParam(param)
			if !ok {
				return true
			}
			return yield(node)
		})
	}
}

// ParseForwardedForRev is ParseForwardedFor with the nodes of value in
// reverse order, rightmost first. The for= nodes of value are buffered
// before the first one is yielded.
func ParseForwardedForRev(value string) iter.Seq[ForwardedNode] {
	return func(yield func(ForwardedNode) bool) {
		nodes := make([]ForwardedNode, 0, typicalChainCapacity)
		for node := range ParseForwardedFor(value) {
			nodes = append(nodes, node)
		}

		for i := len(nodes) - 1; i >= 0; i-- {
			if !yield(nodes[i]) {
				return
			}
		}
	}
}

// parseForwardedValuesRev walks several Forwarded header lines as one
// chain, last line first.
func parseForwardedValuesRev(values []string) iter.Seq[ForwardedNode] {
	return func(yield func(ForwardedNode) bool) {
		for i := len(values) - 1; i >= 0; i-- {
			for node := range ParseForwardedForRev(values[i]) {
				if !yield(node) {
					return
				}
			}
		}
	}
}

// typicalChainCapacity is the initial capacity used when buffering chains.
//
// Most deployments have short chains (around 1-5 hops).
const typicalChainCapacity = 8

// scanForwardedSegments splits value on ',' and ';' outside quoted strings
// and calls onSegment with each trimmed, non-empty segment until it returns
// false. An unterminated quoted string extends to the end of value.
func scanForwardedSegments(value string, onSegment func(string) bool) {
	start := 0
	inQuotes := false
	escaped := false

	for i := 0; i <= len(value); i++ {
		if i < len(value) {
			ch := value[i]

			if escaped {
				escaped = false
				continue
			}

			if ch == '\\' && inQuotes {
				escaped = true
				continue
			}

			if ch == '"' {
				inQuotes = !inQuotes
				continue
			}

			if (ch != ',' && ch != ';') || inQuotes {
				continue
			}
		}

		segment := trimHTTPWhitespace(value[start:i])
		if segment != "" {
			if !onSegment(segment) {
				return
			}
		}

		start = i + 1
	}
}

// parseForwardedParam returns the node of a for= parameter, and false for
// any other parameter.
func parseForwardedParam(param string) (ForwardedNode, bool) {
	eq := strings.IndexByte(param, '=')
	if eq <= 0 {
		return ForwardedNode{}, false
	}

	key := trimHTTPWhitespace(param[:eq])
	if !strings.EqualFold(key, "for") {
		return ForwardedNode{}, false
	}

	value := unquoteForwardedValue(trimHTTPWhitespace(param[eq+1:]))
	return parseForwardedNode(value), true
}

func parseForwardedNode(value string) ForwardedNode {
	if strings.EqualFold(value, "unknown") {
		return ForwardedNode{Kind: NodeUnknown}
	}

	if addr, err := parseHostAddr(value); err == nil {
		return ForwardedNode{Kind: NodeIP, Addr: addr}
	}

	return ForwardedNode{Kind: NodeName, Name: value}
}

// unquoteForwardedValue removes surrounding quotes and resolves backslash
// escapes. Values that are not well-formed quoted strings lose any stray
// leading or trailing quote and are otherwise returned as is.
func unquoteForwardedValue(value string) string {
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
		return strings.Trim(value, `"`)
	}

	inner := value[1 : len(value)-1]
	if strings.IndexByte(inner, '\\') == -1 {
		return inner
	}

	var b strings.Builder
	b.Grow(len(inner))
	escaped := false

	for i := 0; i < len(inner); i++ {
		ch := inner[i]
		if !escaped && ch == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteByte(ch)
	}

	return b.String()
}
