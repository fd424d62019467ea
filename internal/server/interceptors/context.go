package interceptors

import (
	"context"
	"net"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

type contextKey struct{ name string }

var (
	requestIDKey = contextKey{"request_id"}
	clientIPKey  = contextKey{"client_ip"}
)

// RequestIDHeader is the metadata key carrying the caller's request id.
const RequestIDHeader = "x-request-id"

// WithRequest returns a context with request_id and client_ip set.
func WithRequest(ctx context.Context, requestID, clientIP string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return ctx
}

// GetRequestID returns the request_id from context and true if set; otherwise "", false.
func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}

// GetClientIP returns the client_ip from context and true if set; otherwise "", false.
func GetClientIP(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientIPKey).(string)
	return v, ok
}

// ContextUnary returns a unary server interceptor that stores the request id (taken from
// x-request-id metadata or generated) and the client IP in the context.
func ContextUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := firstMetadata(ctx, RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		return handler(WithRequest(ctx, id, ClientIP(ctx)), req)
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if s := firstMetadata(ctx, "x-forwarded-for"); s != "" {
		first, _, _ := strings.Cut(s, ",")
		return strings.TrimSpace(first)
	}
	if s := firstMetadata(ctx, "x-real-ip"); s != "" {
		return s
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
