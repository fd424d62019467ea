package interceptors

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIKeyHeader is the metadata key carrying the host application's key.
const APIKeyHeader = "x-api-key"

// APIKeyUnary returns a unary server interceptor that requires x-api-key metadata equal to
// apiKey. An empty apiKey disables the check. publicMethods is the set of full method names
// that never require a key (e.g. grpc.health.v1.Health/Check).
func APIKeyUnary(apiKey string, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if apiKey == "" || publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		got := firstMetadata(ctx, APIKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid api key")
		}
		return handler(ctx, req)
	}
}
