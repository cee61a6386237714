package httpip

// PresetLoopbackReverseProxy configures resolution for apps behind a
// reverse proxy on the same host (for example NGINX on localhost).
//
// It trusts loopback ranges and reads X-Forwarded-For only.
func PresetLoopbackReverseProxy() Option {
	return func(c *config) error {
		return applyOptions(c,
			TrustLoopbackProxy(),
			Priority(HeaderXForwardedFor),
		)
	}
}

// PresetVMReverseProxy configures resolution for apps behind a reverse
// proxy in a typical VM or private-network setup.
//
// It trusts loopback and private ranges and reads X-Forwarded-For only.
func PresetVMReverseProxy() Option {
	return func(c *config) error {
		return applyOptions(c,
			TrustLocalProxyDefaults(),
			Priority(HeaderXForwardedFor),
		)
	}
}

// PresetStrictChain aborts on the first malformed chain token instead of
// skipping it, for deployments where every hop is a known proxy and a
// malformed token means tampering.
func PresetStrictChain() Option {
	return WithMalformedPolicy(AbortOnMalformed)
}
