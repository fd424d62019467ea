package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"playground-flow/internal/server/interceptors"
	eventhandler "playground-flow/internal/storytelling/handler"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Events is the EventService implementation. If nil, EventService is not registered.
	Events eventhandler.EventServiceServer
	// Health is the grpc.health.v1 server fed by the health checker. If nil, Health is not registered.
	Health *health.Server
}

// RegisterServices registers the gRPC services with the given server.
//
// Service → handler mapping:
//   - playground.flow.v1.EventService → internal/storytelling/handler
//   - grpc.health.v1.Health           → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Events != nil {
		eventhandler.RegisterEventServiceServer(s, deps.Events)
	}
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}

// Options configures NewGRPCServer.
type Options struct {
	// APIKey, when set, is required as x-api-key metadata on every non-health RPC.
	APIKey string
	Logger *zap.Logger
}

// healthMethods are never authenticated nor logged.
var healthMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a grpc.Server with the OTel stats handler and the request context,
// api key and logging interceptors.
func NewGRPCServer(opts Options, extra ...grpc.ServerOption) *grpc.Server {
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.ContextUnary(),
			interceptors.LoggingUnary(opts.Logger, healthMethods),
			interceptors.APIKeyUnary(opts.APIKey, healthMethods),
		),
	}
	return grpc.NewServer(append(serverOpts, extra...)...)
}
