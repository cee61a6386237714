// Package grpcip resolves gRPC client addresses with an httpip.Resolver.
//
// Proxies in front of a gRPC server forward the same Forwarded and
// X-Forwarded-For headers as for HTTP; they arrive as lowercase incoming
// metadata. When no usable chain is present the peer address of the
// transport is used instead, subject to the resolver's fallback setting.
package grpcip

import (
	"context"
	"net/netip"

	"github.com/abczzz13/httpip"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// MetadataHeaders adapts incoming gRPC metadata to httpip.HeaderValues.
//
// metadata.MD.Get lowercases the requested key, so canonical header names
// such as "X-Forwarded-For" find the "x-forwarded-for" entry.
type MetadataHeaders metadata.MD

// Values implements httpip.HeaderValues.
func (m MetadataHeaders) Values(name string) []string {
	return metadata.MD(m).Get(name)
}

// Resolve returns the client resolution for the RPC carried by ctx.
func Resolve(ctx context.Context, resolver *httpip.Resolver) (httpip.Resolution, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	return resolver.ResolveWithRemoteAddr(ctx, MetadataHeaders(md), peerAddr(ctx))
}

// FromIncomingContext returns the client address for the RPC carried by
// ctx.
func FromIncomingContext(ctx context.Context, resolver *httpip.Resolver) (netip.Addr, error) {
	resolution, err := Resolve(ctx, resolver)
	if err != nil {
		return netip.Addr{}, err
	}
	return resolution.Addr, nil
}

// UnaryServerInterceptor resolves the client of every unary RPC and stores
// the result for httpip.FromContext. RPCs whose client cannot be resolved
// are passed through unchanged.
func UnaryServerInterceptor(resolver *httpip.Resolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(withResolution(ctx, resolver), req)
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streaming RPCs.
func StreamServerInterceptor(resolver *httpip.Resolver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &serverStream{
			ServerStream: ss,
			ctx:          withResolution(ss.Context(), resolver),
		})
	}
}

func withResolution(ctx context.Context, resolver *httpip.Resolver) context.Context {
	resolution, err := Resolve(ctx, resolver)
	if err != nil {
		return ctx
	}
	return httpip.NewContext(ctx, resolution)
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

// serverStream overrides the context of a wrapped grpc.ServerStream.
type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStream) Context() context.Context {
	return s.ctx
}
