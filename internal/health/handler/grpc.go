package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger reports database reachability (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker reports whether the opt-in policy evaluates (e.g. *gate.OPAGate).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const checkTimeout = 3 * time.Second

// Checker feeds a grpc.health.v1 server from dependency probes. Nil probes are skipped.
type Checker struct {
	server   *health.Server
	pinger   Pinger
	policy   PolicyChecker
	services []string
	logger   *zap.Logger
}

// NewChecker returns a Checker updating the overall status ("") and each of services.
func NewChecker(server *health.Server, pinger Pinger, policy PolicyChecker, logger *zap.Logger, services ...string) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		server:   server,
		pinger:   pinger,
		policy:   policy,
		services: append([]string{""}, services...),
		logger:   logger,
	}
}

// Server returns the health server to register on a grpc.Server.
func (c *Checker) Server() *health.Server { return c.server }

// Check probes every dependency once and publishes the result.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			c.logger.Warn("health: database ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			c.logger.Warn("health: policy check failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	for _, svc := range c.services {
		c.server.SetServingStatus(svc, st)
	}
	return st
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain the instance.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}
