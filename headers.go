package httpip

import (
	"net/textproto"
	"strings"
)

const (
	// HeaderForwarded is the RFC 7239 Forwarded header.
	HeaderForwarded = "Forwarded"
	// HeaderXForwardedFor is the de facto X-Forwarded-For header.
	HeaderXForwardedFor = "X-Forwarded-For"
)

const (
	// SourceForwarded names results read from the Forwarded header.
	SourceForwarded = "forwarded"
	// SourceXForwardedFor names results read from X-Forwarded-For.
	SourceXForwardedFor = "x_forwarded_for"
	// SourceRemoteAddr names results taken from the transport peer address.
	SourceRemoteAddr = "remote_addr"
)

// HeaderValues provides access to request header values by name.
//
// Implementations should return one slice entry per received header line;
// lines are walked last line first. Header names are requested in canonical
// MIME format (for example "X-Forwarded-For").
//
// net/http's http.Header satisfies this interface directly.
type HeaderValues interface {
	Values(name string) []string
}

// HeaderValuesFunc adapts a function to the HeaderValues interface.
type HeaderValuesFunc func(name string) []string

// Values implements HeaderValues.
func (f HeaderValuesFunc) Values(name string) []string {
	if f == nil {
		return nil
	}

	return f(name)
}

// HeaderGetterFunc adapts a single-value lookup, such as a framework's
// "get header or nothing" accessor, to the HeaderValues interface.
type HeaderGetterFunc func(name string) (string, bool)

// Values implements HeaderValues.
func (f HeaderGetterFunc) Values(name string) []string {
	if f == nil {
		return nil
	}

	value, ok := f(name)
	if !ok {
		return nil
	}
	return []string{value}
}

// FormatHeaderValues renders the lines of one header for logs, separated by
// " ,".
func FormatHeaderValues(values []string) string {
	return strings.Join(values, " ,")
}

// NormalizeSourceName maps a header name to its source label, for example
// "X-Forwarded-For" to "x_forwarded_for".
func NormalizeSourceName(headerName string) string {
	return strings.ToLower(strings.ReplaceAll(headerName, "-", "_"))
}

func canonicalHeaderName(name string) string {
	name = strings.TrimSpace(name)
	switch NormalizeSourceName(name) {
	case SourceForwarded:
		return HeaderForwarded
	case SourceXForwardedFor:
		return HeaderXForwardedFor
	default:
		return textproto.CanonicalMIMEHeaderKey(name)
	}
}

func headerValues(headers HeaderValues, name string) []string {
	if isNilInterface(headers) {
		return nil
	}
	return headers.Values(name)
}
