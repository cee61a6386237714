package httpip

import (
	"context"
	"net/http"
	"net/netip"
)

// resolutionContextKey is the key for storing a Resolution in a context.
type resolutionContextKey struct{}

// NewContext returns a copy of ctx carrying resolution.
func NewContext(ctx context.Context, resolution Resolution) context.Context {
	return context.WithValue(ctx, resolutionContextKey{}, resolution)
}

// ResolutionFromContext returns the Resolution stored by NewContext or
// Middleware.
func ResolutionFromContext(ctx context.Context) (Resolution, bool) {
	resolution, ok := ctx.Value(resolutionContextKey{}).(Resolution)
	return resolution, ok && resolution.Valid()
}

// FromContext returns the client address stored by NewContext or
// Middleware.
func FromContext(ctx context.Context) (netip.Addr, bool) {
	resolution, ok := ResolutionFromContext(ctx)
	return resolution.Addr, ok
}

// Middleware resolves the client of every request with resolver and stores
// the result in the request context for FromContext.
//
// Requests whose client cannot be resolved are passed through unchanged.
// The handler is compatible with routers that accept
// func(http.Handler) http.Handler, such as chi.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolution, err := resolver.ResolveRequest(r)
			if err == nil {
				r = r.WithContext(NewContext(r.Context(), resolution))
			}
			next.ServeHTTP(w, r)
		})
	}
}
