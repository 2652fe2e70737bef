package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"aiportal.dev/internal/obs"
)

// HealthServer exposes grpc.health.v1.Health. The empty service name and
// ServiceName report overall readiness; every readiness check also gets its
// own service entry.
type HealthServer struct {
	srv   *health.Server
	probe ReadyProbe
}

func NewHealthServer(probe ReadyProbe) *HealthServer {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{srv: srv, probe: probe}
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Sync runs the readiness checks once and publishes the statuses.
func (h *HealthServer) Sync(ctx context.Context) bool {
	ready := true
	for name, err := range h.probe.CheckEach(ctx) {
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			ready = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			obs.Logger().Warn().Err(err).Str("check", name).Msg("readiness check failed")
		}
		h.srv.SetServingStatus(name, status)
	}
	overall := healthpb.HealthCheckResponse_SERVING
	if !ready {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", overall)
	h.srv.SetServingStatus(ServiceName, overall)
	obs.SetReady(ready)
	return ready
}

// Run syncs every interval until ctx is done, then marks everything as not serving.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		h.sync(ctx, interval)
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (h *HealthServer) sync(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	h.Sync(ctx)
}
