package httpip

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		headers   http.Header
		want      string
		source    string
		hops      int
		wantErr   error
		errHeader string
	}{
		{
			name:    "x-forwarded-for",
			opts:    []Option{TrustedCidrs("198.51.100.0/24")},
			headers: http.Header{"X-Forwarded-For": {"203.0.113.195,2001:db8:85a3:8d3:1319:8a2e:370:7348,198.51.100.178"}},
			want:    "2001:db8:85a3:8d3:1319:8a2e:370:7348",
			source:  SourceXForwardedFor,
			hops:    1,
		},
		{
			name:    "forwarded preferred over x-forwarded-for",
			opts:    []Option{TrustedCidrs("10.0.0.0/8")},
			headers: http.Header{"Forwarded": {"for=192.0.2.60;proto=http, for=10.0.0.2"}, "X-Forwarded-For": {"203.0.113.1"}},
			want:    "192.0.2.60",
			source:  SourceForwarded,
			hops:    1,
		},
		{
			name:    "x-forwarded-for when forwarded absent",
			headers: http.Header{"X-Forwarded-For": {"203.0.113.1"}},
			want:    "203.0.113.1",
			source:  SourceXForwardedFor,
		},
		{
			name:    "forwarded without for node falls through",
			opts:    []Option{TrustedCidrs("10.0.0.0/8"), WithRemoteAddrFallback(false)},
			headers: http.Header{"Forwarded": {"proto=https"}, "X-Forwarded-For": {"1.1.1.1, 10.0.0.2"}},
			want:    "1.1.1.1",
			source:  SourceXForwardedFor,
			hops:    1,
		},
		{
			name:    "forwarded without for node only",
			headers: http.Header{"Forwarded": {"proto=https;by=10.0.0.1", "host=example.com"}},
			wantErr: ErrHeaderAbsent,
		},
		{
			name: "multiple lines walked last line first",
			opts: []Option{TrustedCidrs("10.0.0.0/8")},
			headers: http.Header{"Forwarded": {
				`By="[2001:db8:cafe::17]:4711",For=127.0.0.1`,
				"For=192.168.0.1,For=10.0.0.1",
			}},
			want:   "192.168.0.1",
			source: SourceForwarded,
			hops:   1,
		},
		{
			name: "forwarded filtered by single address",
			opts: []Option{WithFilter(AddrFilter(netip.MustParseAddr("10.0.0.1")))},
			headers: http.Header{"Forwarded": {
				`By="[2001:db8:cafe::17]:4711",For=127.0.0.1`,
				"For=192.168.0.1,For=10.0.0.1",
			}},
			want:   "192.168.0.1",
			source: SourceForwarded,
			hops:   1,
		},
		{
			name: "forwarded filtered by full width cidr",
			opts: []Option{TrustedCidrs("10.0.0.0/32")},
			headers: http.Header{"Forwarded": {
				`By="[2001:db8:cafe::17]:4711",For=127.0.0.1`,
				"For=192.168.0.1,For=10.0.0.1",
			}},
			want:   "10.0.0.1",
			source: SourceForwarded,
		},
		{
			name: "forwarded filtered by or",
			opts: []Option{WithFilter(Or(MustParseCidr("10.0.0.0/32"), AddrFilter(netip.MustParseAddr("10.0.0.1"))))},
			headers: http.Header{"Forwarded": {
				`By="[2001:db8:cafe::17]:4711",For=127.0.0.1`,
				"For=192.168.0.1,For=10.0.0.1",
			}},
			want:   "192.168.0.1",
			source: SourceForwarded,
			hops:   1,
		},
		{
			name:      "forwarded obfuscated node stops scan",
			opts:      []Option{TrustedCidrs("10.0.0.0/8")},
			headers:   http.Header{"Forwarded": {"for=203.0.113.1, for=_hidden, for=10.0.0.2"}},
			source:    SourceForwarded,
			hops:      1,
			wantErr:   ErrObfuscated,
			errHeader: HeaderForwarded,
		},
		{
			name:      "forwarded unknown node stops scan",
			headers:   http.Header{"Forwarded": {"for=203.0.113.1, for=unknown"}},
			source:    SourceForwarded,
			wantErr:   ErrObfuscated,
			errHeader: HeaderForwarded,
		},
		{
			name:      "all trusted",
			opts:      []Option{TrustedCidrs("198.51.100.0/24")},
			headers:   http.Header{"X-Forwarded-For": {"198.51.100.1,198.51.100.2"}},
			source:    SourceXForwardedFor,
			hops:      2,
			wantErr:   ErrNotFound,
			errHeader: HeaderXForwardedFor,
		},
		{
			name:    "malformed token skipped",
			opts:    []Option{TrustedCidrs("198.51.100.0/24")},
			headers: http.Header{"X-Forwarded-For": {"203.0.113.1,not-an-ip,198.51.100.5"}},
			want:    "203.0.113.1",
			source:  SourceXForwardedFor,
			hops:    1,
		},
		{
			name:      "malformed token aborts",
			opts:      []Option{TrustedCidrs("198.51.100.0/24"), WithMalformedPolicy(AbortOnMalformed)},
			headers:   http.Header{"X-Forwarded-For": {"203.0.113.1,not-an-ip,198.51.100.5"}},
			source:    SourceXForwardedFor,
			hops:      1,
			wantErr:   ErrMalformedToken,
			errHeader: HeaderXForwardedFor,
		},
		{
			name:      "chain too long",
			opts:      []Option{TrustedCidrs("10.0.0.0/8"), MaxChainLength(2)},
			headers:   http.Header{"X-Forwarded-For": {"1.1.1.1, 10.0.0.1, 10.0.0.2"}},
			source:    SourceXForwardedFor,
			hops:      2,
			wantErr:   ErrChainTooLong,
			errHeader: HeaderXForwardedFor,
		},
		{
			name:    "custom header priority",
			opts:    []Option{Priority("X-Real-IP")},
			headers: http.Header{"X-Real-Ip": {"203.0.113.50"}, "X-Forwarded-For": {"203.0.113.1"}},
			want:    "203.0.113.50",
			source:  "x_real_ip",
		},
		{
			name:    "no header",
			headers: http.Header{},
			wantErr: ErrHeaderAbsent,
		},
		{
			name:    "nil headers",
			headers: nil,
			wantErr: ErrHeaderAbsent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := mustNewResolver(t, tt.opts...)

			got, err := resolver.Resolve(context.Background(), tt.headers)
			if got.Source != tt.source || got.TrustedHops != tt.hops {
				t.Fatalf("Resolve() = source %q hops %d, want %q %d", got.Source, got.TrustedHops, tt.source, tt.hops)
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				if got.Valid() {
					t.Fatalf("Resolve() = %v on error, want no address", got.Addr)
				}
				if tt.errHeader != "" {
					var headerErr *HeaderError
					if !errors.As(err, &headerErr) || headerErr.Header != tt.errHeader {
						t.Fatalf("Resolve() error = %#v, want *HeaderError for %s", err, tt.errHeader)
					}
					if headerErr.SourceName() != tt.source {
						t.Fatalf("SourceName() = %q, want %q", headerErr.SourceName(), tt.source)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Addr.String() != tt.want {
				t.Fatalf("Resolve() = %s, want %s", got.Addr, tt.want)
			}
		})
	}
}

func TestResolver_ResolveCanceledContext(t *testing.T) {
	resolver := mustNewResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, http.Header{"X-Forwarded-For": {"1.1.1.1"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestResolver_ResolveNilContext(t *testing.T) {
	resolver := mustNewResolver(t)

	got, err := resolver.ResolveAddr(nil, http.Header{"X-Forwarded-For": {"1.1.1.1"}})
	if err != nil || got.String() != "1.1.1.1" {
		t.Fatalf("ResolveAddr(nil) = %v, %v, want 1.1.1.1", got, err)
	}
}

func TestResolver_HeaderAdapters(t *testing.T) {
	resolver := mustNewResolver(t, TrustedCidrs("10.0.0.0/8"))

	getter := HeaderGetterFunc(func(name string) (string, bool) {
		if name == HeaderXForwardedFor {
			return "203.0.113.7, 10.0.0.1", true
		}
		return "", false
	})

	got, err := resolver.ResolveAddr(context.Background(), getter)
	if err != nil || got.String() != "203.0.113.7" {
		t.Fatalf("ResolveAddr(getter) = %v, %v", got, err)
	}

	lines := HeaderValuesFunc(func(name string) []string {
		if name == HeaderForwarded {
			return []string{"for=203.0.113.8", "for=10.0.0.3"}
		}
		return nil
	})

	got, err = resolver.ResolveAddr(context.Background(), lines)
	if err != nil || got.String() != "203.0.113.8" {
		t.Fatalf("ResolveAddr(lines) = %v, %v", got, err)
	}

	var nilFunc HeaderValuesFunc
	if _, err := resolver.ResolveAddr(context.Background(), nilFunc); !errors.Is(err, ErrHeaderAbsent) {
		t.Fatalf("ResolveAddr(nil func) error = %v, want ErrHeaderAbsent", err)
	}
}

func TestResolver_ClientIP(t *testing.T) {
	resolver := mustNewResolver(t, TrustedCidrs("198.51.100.0/24"))

	got, err := resolver.ClientIP(context.Background(), "203.0.113.1,198.51.100.5")
	if err != nil {
		t.Fatalf("ClientIP() error = %v", err)
	}
	if got.String() != "203.0.113.1" {
		t.Fatalf("ClientIP() = %s, want 203.0.113.1", got)
	}

	if _, err := resolver.ClientIP(context.Background(), "198.51.100.1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ClientIP() error = %v, want ErrNotFound", err)
	}
}

func TestResolver_ResolveRequest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		remoteAddr string
		headers    http.Header
		want       string
		source     string
		wantErr    error
	}{
		{
			name:       "header wins",
			opts:       []Option{TrustedCidrs("10.0.0.0/8")},
			remoteAddr: "10.0.0.1:4711",
			headers:    http.Header{"X-Forwarded-For": {"203.0.113.1"}},
			want:       "203.0.113.1",
			source:     SourceXForwardedFor,
		},
		{
			name:       "fallback without header",
			remoteAddr: "192.0.2.1:4711",
			want:       "192.0.2.1",
			source:     SourceRemoteAddr,
		},
		{
			name:       "fallback ipv6 remote",
			remoteAddr: "[2001:db8::5]:4711",
			want:       "2001:db8::5",
			source:     SourceRemoteAddr,
		},
		{
			name:       "fallback when all trusted",
			opts:       []Option{TrustedCidrs("10.0.0.0/8")},
			remoteAddr: "10.0.0.1:4711",
			headers:    http.Header{"X-Forwarded-For": {"10.0.0.2"}},
			want:       "10.0.0.1",
			source:     SourceRemoteAddr,
		},
		{
			name:       "fallback on obfuscated node",
			remoteAddr: "10.0.0.1:4711",
			headers:    http.Header{"Forwarded": {"for=_hidden"}},
			want:       "10.0.0.1",
			source:     SourceRemoteAddr,
		},
		{
			name:       "no fallback on malformed chain",
			opts:       []Option{PresetStrictChain()},
			remoteAddr: "10.0.0.1:4711",
			headers:    http.Header{"X-Forwarded-For": {"junk"}},
			wantErr:    ErrMalformedToken,
		},
		{
			name:       "no fallback on chain too long",
			opts:       []Option{TrustedCidrs("10.0.0.0/8"), MaxChainLength(1)},
			remoteAddr: "10.0.0.1:4711",
			headers:    http.Header{"X-Forwarded-For": {"1.1.1.1, 10.0.0.2"}},
			wantErr:    ErrChainTooLong,
		},
		{
			name:       "fallback disabled",
			opts:       []Option{WithRemoteAddrFallback(false)},
			remoteAddr: "192.0.2.1:4711",
			wantErr:    ErrHeaderAbsent,
		},
		{
			name:       "empty remote addr",
			remoteAddr: "",
			wantErr:    ErrHeaderAbsent,
		},
		{
			name:       "unparsable remote addr",
			remoteAddr: "not-an-addr",
			wantErr:    ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := mustNewResolver(t, tt.opts...)

			req := newTestRequest(tt.remoteAddr, "/")
			for name, values := range tt.headers {
				req.Header[name] = values
			}

			got, err := resolver.ResolveRequest(req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveRequest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRequest() error = %v", err)
			}
			if got.Addr.String() != tt.want || got.Source != tt.source {
				t.Fatalf("ResolveRequest() = %s from %s, want %s from %s", got.Addr, got.Source, tt.want, tt.source)
			}
		})
	}
}

func TestResolver_ResolveRequestNil(t *testing.T) {
	if _, err := mustNewResolver(t).ResolveRequest(nil); !errors.Is(err, ErrHeaderAbsent) {
		t.Fatalf("ResolveRequest(nil) error = %v, want ErrHeaderAbsent", err)
	}
}

func TestResolver_LeftmostRightmost(t *testing.T) {
	tests := []struct {
		name          string
		headers       http.Header
		leftmost      string
		rightmost     string
		wantLeftmost  bool
		wantRightmost bool
	}{
		{
			name: "forwarded leftmost ip, rightmost obfuscated",
			headers: http.Header{"Forwarded": {
				`By="[2001:db8:cafe::17]:4711",For=127.0.0.1`,
				"For=unknown,For=_hidden",
			}},
			leftmost:     "127.0.0.1",
			wantLeftmost: true,
		},
		{
			name: "forwarded leftmost obfuscated, rightmost ip",
			headers: http.Header{"Forwarded": {
				`By="[2001:db8:cafe::17]:4711",For=_hidden`,
				"For=unknown,For=127.0.0.1",
			}},
			rightmost:     "127.0.0.1",
			wantRightmost: true,
		},
		{
			name: "x-forwarded-for across lines",
			headers: http.Header{"X-Forwarded-For": {
				"203.0.113.1, 10.0.0.1",
				"10.0.0.2, 10.0.0.3",
			}},
			leftmost:      "203.0.113.1",
			rightmost:     "10.0.0.3",
			wantLeftmost:  true,
			wantRightmost: true,
		},
		{
			name: "forwarded without for node falls through",
			headers: http.Header{
				"Forwarded":       {"proto=https"},
				"X-Forwarded-For": {"203.0.113.1, 10.0.0.1"},
			},
			leftmost:      "203.0.113.1",
			rightmost:     "10.0.0.1",
			wantLeftmost:  true,
			wantRightmost: true,
		},
		{
			name:    "x-forwarded-for malformed edges",
			headers: http.Header{"X-Forwarded-For": {"junk, 10.0.0.1, "}},
		},
		{
			name:    "no header",
			headers: http.Header{},
		},
	}

	resolver := mustNewResolver(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, ok := resolver.Leftmost(tt.headers)
			if ok != tt.wantLeftmost || (ok && left.String() != tt.leftmost) {
				t.Fatalf("Leftmost() = %v, %v, want %s, %v", left, ok, tt.leftmost, tt.wantLeftmost)
			}

			right, ok := resolver.Rightmost(tt.headers)
			if ok != tt.wantRightmost || (ok && right.String() != tt.rightmost) {
				t.Fatalf("Rightmost() = %v, %v, want %s, %v", right, ok, tt.rightmost, tt.wantRightmost)
			}
		})
	}
}

func TestFormatHeaderValues(t *testing.T) {
	got := FormatHeaderValues([]string{
		`By="[2001:db8:cafe::17]:4711",For=127.0.0.1`,
		"For=unknown,For=_hidden",
	})
	want := `By="[2001:db8:cafe::17]:4711",For=127.0.0.1 ,For=unknown,For=_hidden`
	if got != want {
		t.Fatalf("FormatHeaderValues() = %q, want %q", got, want)
	}

	if got := FormatHeaderValues(nil); got != "" {
		t.Fatalf("FormatHeaderValues(nil) = %q, want empty", got)
	}
}

func TestNormalizeSourceName(t *testing.T) {
	tests := map[string]string{
		"X-Forwarded-For": SourceXForwardedFor,
		"Forwarded":       SourceForwarded,
		"X-Real-IP":       "x_real_ip",
	}

	for in, want := range tests {
		if got := NormalizeSourceName(in); got != want {
			t.Errorf("NormalizeSourceName(%q) = %q, want %q", in, got, want)
		}
	}
}
