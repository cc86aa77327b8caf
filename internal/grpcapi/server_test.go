package grpcapi

import (
	"context"
	"errors"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRefreshHealthServingWhenBothReachable(t *testing.T) {
	s := NewServer("satchel", fakePinger{}, fakePinger{})
	s.refreshHealth(context.Background())

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "satchel"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.Status)
	}
}

func TestRefreshHealthNotServingWhenPostgresUnreachable(t *testing.T) {
	s := NewServer("satchel", fakePinger{err: errors.New("down")}, fakePinger{})
	s.refreshHealth(context.Background())

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "satchel"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", resp.Status)
	}
}

func TestRefreshHealthIgnoresNilPingers(t *testing.T) {
	s := NewServer("satchel", nil, nil)
	s.refreshHealth(context.Background())

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "satchel"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.Status)
	}
}
