package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs each RPC after it completes.
// skipMethods is the set of full method names to not log (e.g. health checks).
func LoggingUnary(logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		requestID, _ := GetRequestID(ctx)
		clientIP, ok := GetClientIP(ctx)
		if !ok {
			clientIP = ClientIP(ctx)
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
			zap.String("client_ip", clientIP),
		}
		switch code {
		case codes.OK:
			logger.Info("rpc", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			logger.Error("rpc", append(fields, zap.Error(err))...)
		default:
			logger.Warn("rpc", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
