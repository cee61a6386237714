package httpip

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrEmptyToken = errors.New("empty address token")

	ErrInvalidAddress = errors.New("invalid IP address")

	ErrMissingPrefix = errors.New("missing CIDR prefix length")

	ErrInvalidPrefix = errors.New("invalid CIDR prefix length")

	ErrPrefixOutOfRange = errors.New("CIDR prefix length out of range")

	ErrHostBitsSet = errors.New("CIDR address has host bits set")

	// ErrNotFound reports that every address in the chain was trusted or
	// skipped as malformed.
	ErrNotFound = errors.New("no untrusted address found in forwarding chain")

	ErrMalformedToken = errors.New("malformed token in forwarding chain")

	ErrChainTooLong = errors.New("forwarding chain too long")

	ErrObfuscated = errors.New("forwarding chain contains an obfuscated or unknown node")

	// ErrHeaderAbsent reports that none of the configured headers is present.
	ErrHeaderAbsent = errors.New("no forwarding header present")
)

// ParseError reports a malformed CIDR literal or address token.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(input string, err error) error {
	return &ParseError{Input: input, Err: err}
}

// FindError reports why a filter scan did not return an address.
//
// Index is the zero-based position, in iteration order, of the element that
// stopped the scan. It is -1 when the sequence was exhausted.
type FindError struct {
	Err   error
	Index int
	Token string
}

func (e *FindError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	if e.Token != "" {
		return fmt.Sprintf("%v (index=%d, token=%q)", e.Err, e.Index, e.Token)
	}
	return fmt.Sprintf("%v (index=%d)", e.Err, e.Index)
}

func (e *FindError) Unwrap() error {
	return e.Err
}

// HeaderError ties a resolution failure to the header it came from.
type HeaderError struct {
	Err    error
	Header string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Header, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

// SourceName returns the canonical name of the header that failed.
func (e *HeaderError) SourceName() string {
	return NormalizeSourceName(e.Header)
}

// Resolution is the outcome of a successful client address lookup.
type Resolution struct {
	Addr netip.Addr

	// Source names where Addr came from, one of SourceForwarded,
	// SourceXForwardedFor or SourceRemoteAddr.
	Source string

	// TrustedHops counts the trusted addresses skipped before Addr.
	TrustedHops int
}

// Valid reports whether r carries a usable address.
func (r Resolution) Valid() bool {
	return r.Addr.IsValid()
}
