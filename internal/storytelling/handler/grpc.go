package handler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"playground-flow/internal/event"
	"playground-flow/internal/object"
	"playground-flow/internal/storytelling/service"
)

// Triggerer runs one event through the subscribed handlers.
type Triggerer interface {
	Trigger(ctx context.Context, target, name string, params map[string]any) error
}

// Server implements EventService: the host application's events enter the listener here.
// Proto: playground/flow/v1/event.proto → internal/storytelling/handler.
type Server struct {
	events   Triggerer
	registry *object.Registry
	logger   *zap.Logger
}

// NewServer returns a new EventService server. Params whose name is a role in registry are
// decoded into that role's type before dispatch.
func NewServer(events Triggerer, registry *object.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{events: events, registry: registry, logger: logger}
}

var errBadRequest = errors.New("bad dispatch request")

// request is one decoded event of a Dispatch call.
type request struct {
	Name   string
	Target string
	Params map[string]any
}

// Dispatch triggers every event of req in order inside one correlation scope. The first
// failing event stops the batch.
func (s *Server) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.events == nil {
		return nil, status.Error(codes.Unimplemented, "method Dispatch not implemented")
	}
	reqs, err := s.decode(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx = service.WithCorrelation(ctx)
	for i, r := range reqs {
		if err := s.events.Trigger(ctx, r.Target, r.Name, r.Params); err != nil {
			s.logger.Error("dispatch failed",
				zap.String("event", r.Name),
				zap.String("target", r.Target),
				zap.Int("index", i),
				zap.Error(err))
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, status.FromContextError(err).Err()
			}
			return nil, status.Error(codes.Internal, err.Error())
		}
	}
	return structpb.NewStruct(map[string]any{"dispatched": len(reqs)})
}

func (s *Server) decode(req *structpb.Struct) ([]request, error) {
	raw, ok := req.AsMap()["events"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: events must be a list", errBadRequest)
	}
	out := make([]request, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: events[%d] must be an object", errBadRequest, i)
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("%w: events[%d].name is required", errBadRequest, i)
		}
		target, _ := m["target"].(string)
		if target == "" {
			target = event.Wildcard
		}
		params, err := s.decodeParams(m["params"])
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		out = append(out, request{Name: name, Target: target, Params: params})
	}
	return out, nil
}

func (s *Server) decodeParams(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	in, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: params must be an object", errBadRequest)
	}
	params := make(map[string]any, len(in))
	for name, v := range in {
		if s.registry != nil {
			decoded, err := s.registry.Decode(name, v)
			if err != nil {
				return nil, err
			}
			v = decoded
		}
		params[name] = v
	}
	return params, nil
}
