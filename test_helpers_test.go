package httpip

import (
	"context"
	"iter"
	"net/http"
	"net/netip"
	"net/url"
	"sync"
	"testing"
)

func mustNewResolver(t testing.TB, opts ...Option) *Resolver {
	t.Helper()

	resolver, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return resolver
}

func newTestRequest(remoteAddr, path string) *http.Request {
	req := &http.Request{
		RemoteAddr: remoteAddr,
		Header:     make(http.Header),
	}

	if path != "" {
		req.URL = &url.URL{Path: path}
	}

	return req
}

// tokenResult renders one element of an address sequence for comparison.
type tokenResult struct {
	Addr string
	Err  bool
}

func collectTokens(seq iter.Seq2[netip.Addr, error]) []tokenResult {
	var results []tokenResult
	for addr, err := range seq {
		if err != nil {
			results = append(results, tokenResult{Err: true})
			continue
		}
		results = append(results, tokenResult{Addr: addr.String()})
	}
	return results
}

func seqOf(tokens ...string) iter.Seq2[netip.Addr, error] {
	return func(yield func(netip.Addr, error) bool) {
		for _, token := range tokens {
			if !yield(ParseAddr(token)) {
				return
			}
		}
	}
}

type capturedLogEntry struct {
	ctx   context.Context
	msg   string
	attrs map[string]any
}

type capturedLogger struct {
	mu      sync.Mutex
	entries []capturedLogEntry
}

func (l *capturedLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, capturedLogEntry{
		ctx:   ctx,
		msg:   msg,
		attrs: attrsToMap(args),
	})
}

func (l *capturedLogger) snapshot() []capturedLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]capturedLogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func attrsToMap(args []any) map[string]any {
	attrs := make(map[string]any)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs[key] = args[i+1]
	}
	return attrs
}

func assertAttr(t *testing.T, attrs map[string]any, key string, want any) {
	t.Helper()

	got, ok := attrs[key]
	if !ok {
		t.Fatalf("missing %q attr", key)
	}

	if got != want {
		t.Fatalf("%s attr = %v, want %v", key, got, want)
	}
}

type mockMetrics struct {
	mu             sync.Mutex
	successCount   map[string]int
	failureCount   map[string]int
	securityEvents map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		successCount:   make(map[string]int),
		failureCount:   make(map[string]int),
		securityEvents: make(map[string]int),
	}
}

func (m *mockMetrics) RecordResolutionSuccess(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successCount[source]++
}

func (m *mockMetrics) RecordResolutionFailure(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureCount[source]++
}

func (m *mockMetrics) RecordSecurityEvent(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securityEvents[event]++
}

func (m *mockMetrics) getSuccessCount(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successCount[source]
}

func (m *mockMetrics) getFailureCount(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failureCount[source]
}

func (m *mockMetrics) getSecurityEventCount(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.securityEvents[event]
}
