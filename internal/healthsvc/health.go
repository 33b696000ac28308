// Package healthsvc exposes the Orchestrator over the standard gRPC health
// checking protocol (grpc.health.v1), giving an operator or a collaborating
// process a liveness probe without a hand-authored wire format.
package healthsvc

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/zeroshot-dev/zeroshot/pkg/orchestrator"
)

// Service implements grpc_health_v1.HealthServer against an Orchestrator:
// SERVING while at least one cluster is running, NOT_SERVING otherwise
// (including during shutdown, once Shutdown has been called).
type Service struct {
	grpc_health_v1.UnimplementedHealthServer

	orch     *orchestrator.Orchestrator
	server   *grpc.Server
	shutdown bool
}

// New creates a Service reporting on orch's clusters.
func New(orch *orchestrator.Orchestrator) *Service {
	return &Service{orch: orch}
}

// Check implements grpc_health_v1.HealthServer. service is ignored: this
// process reports a single overall status, not per-service granularity.
func (s *Service) Check(_ context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: s.status()}, nil
}

// Watch implements grpc_health_v1.HealthServer. Streaming status changes is
// out of scope; callers should poll Check instead.
func (s *Service) Watch(_ *grpc_health_v1.HealthCheckRequest, _ grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "healthsvc: Watch not implemented, poll Check instead")
}

func (s *Service) status() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s.shutdown {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	for _, c := range s.orch.ListClusters() {
		if c.Status == orchestrator.StatusRunning {
			return grpc_health_v1.HealthCheckResponse_SERVING
		}
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

// Serve registers Service on a new gRPC server, starts serving on ln in a
// background goroutine, and returns without blocking.
func Serve(ln net.Listener, orch *orchestrator.Orchestrator) (*Service, *grpc.Server, error) {
	svc := New(orch)
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, svc)
	svc.server = srv

	go func() {
		if err := srv.Serve(ln); err != nil {
			slog.Error("healthsvc: serve failed", "error", err)
		}
	}()

	return svc, srv, nil
}

// Shutdown marks the service NOT_SERVING and gracefully stops the gRPC
// server, if one was started via Serve.
func (s *Service) Shutdown() {
	s.shutdown = true
	if s.server != nil {
		s.server.GracefulStop()
	}
}
