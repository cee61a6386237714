package httpip

// Metrics records resolution outcomes and security events emitted by
// Resolver.
//
// Implementations should be safe for concurrent use, as a single Resolver
// instance is typically shared across many goroutines.
type Metrics interface {
	// RecordResolutionSuccess is called when a source yields the client
	// address.
	RecordResolutionSuccess(source string)
	// RecordResolutionFailure is called when a source is present but yields
	// no client address.
	RecordResolutionFailure(source string)
	// RecordSecurityEvent is called when the resolver observes a
	// security-relevant condition.
	RecordSecurityEvent(event string)
}

// noopMetrics is the default Metrics implementation when metrics are not
// explicitly configured.
type noopMetrics struct{}

func (noopMetrics) RecordResolutionSuccess(string) {}

func (noopMetrics) RecordResolutionFailure(string) {}

func (noopMetrics) RecordSecurityEvent(string) {}
