// Package grpcapi runs a gRPC server alongside the HTTP surface exposing
// the standard grpc_health_v1 health-checking service, wired to the same
// Postgres/Redis connectivity the HTTP /health endpoint reports (spec.md
// §6's scoped-down gRPC surface — see DESIGN.md for why a custom
// Allocate/AllocateBatch RPC surface is out of reach here).
package grpcapi

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oriys/satchel/internal/logging"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a grpc.Server exposing only the standard health-checking
// service and reflection. It has no allocator-specific RPCs.
type Server struct {
	server  *grpc.Server
	health  *health.Server
	service string

	postgres Pinger
	redis    Pinger
}

// NewServer creates a gRPC server whose health service reports SERVING only
// while both postgres and redis answer Ping. Either may be nil, in which
// case that component is not checked.
func NewServer(serviceName string, postgres, redis Pinger) *Server {
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return &Server{
		server:   s,
		health:   hs,
		service:  serviceName,
		postgres: postgres,
		redis:    redis,
	}
}

// Start listens on addr and begins serving, updating health status every
// checkInterval until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string, checkInterval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go s.watchHealth(ctx, checkInterval)

	logging.Op().Info("gRPC server started", "addr", addr)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("gRPC server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.server.GracefulStop()
}

func (s *Server) watchHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshHealth(ctx)
		}
	}
}

func (s *Server) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.postgres != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.postgres.Ping(checkCtx)
		cancel()
		if err != nil {
			logging.Op().Warn("gRPC health check: postgres unreachable", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.redis != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.redis.Ping(checkCtx)
		cancel()
		if err != nil {
			logging.Op().Warn("gRPC health check: redis unreachable", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
}
