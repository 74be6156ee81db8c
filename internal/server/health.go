package server

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/tapedeck/internal/trace"
)

// Health serves the standard gRPC health protocol. The overall service is
// SERVING while the process is up; CaptureHealthService tracks whether a
// session is recording.
type Health struct {
	srv    *grpc.Server
	health *health.Server
}

// NewHealth creates the health server.
func NewHealth() *Health {
	srv := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CaptureHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{srv: srv, health: hs}
}

// SetCapturing updates the capture service status.
func (h *Health) SetCapturing(on bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if on {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(CaptureHealthService, status)
}

// Serve blocks serving on lis.
func (h *Health) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// Stop marks everything NOT_SERVING and stops the server.
func (h *Health) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}
