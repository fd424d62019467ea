package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names of the event ingress.
const (
	ServiceName    = "playground.flow.v1.EventService"
	DispatchMethod = "/" + ServiceName + "/Dispatch"
)

// EventServiceServer is the server API for EventService.
type EventServiceServer interface {
	// Dispatch runs a batch of host events in one correlation scope.
	Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// EventServiceDesc describes EventService for grpc.ServiceRegistrar. Requests and responses
// are google.protobuf.Struct values.
var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "playground/flow/v1/event.proto",
}

// RegisterEventServiceServer registers srv with s.
func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&EventServiceDesc, srv)
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DispatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventServiceServer).Dispatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EventServiceClient is the client API for EventService.
type EventServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEventServiceClient returns a client calling EventService over cc.
func NewEventServiceClient(cc grpc.ClientConnInterface) *EventServiceClient {
	return &EventServiceClient{cc: cc}
}

// Dispatch calls EventService/Dispatch.
func (c *EventServiceClient) Dispatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DispatchMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
