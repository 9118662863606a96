package grpc

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PipelineServiceName is the health-checked service name for the SMS pipeline.
const PipelineServiceName = "notification.Pipeline"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// HealthService publishes grpc.health.v1 status derived from dependency probes.
type HealthService struct {
	server *health.Server
	logger *slog.Logger

	mu     sync.Mutex
	probes map[string]Probe
}

func NewHealthService(logger *slog.Logger) *HealthService {
	s := &HealthService{
		server: health.NewServer(),
		logger: logger.With("component", "grpc_health"),
		probes: make(map[string]Probe),
	}
	s.setAll(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// AddProbe registers a named dependency check. Call Refresh to apply it.
func (s *HealthService) AddProbe(name string, p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = p
}

// Register attaches the health service to srv.
func (s *HealthService) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.server)
}

// Refresh runs every probe and marks the pipeline SERVING only if all pass.
// It returns the names of failing probes.
func (s *HealthService) Refresh(ctx context.Context) []string {
	s.mu.Lock()
	probes := make(map[string]Probe, len(s.probes))
	for name, p := range s.probes {
		probes[name] = p
	}
	s.mu.Unlock()

	var failing []string
	for name, p := range probes {
		if err := p(ctx); err != nil {
			s.logger.WarnContext(ctx, "Health probe failed", "probe", name, "error", err)
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	if len(failing) == 0 {
		s.setAll(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setAll(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return failing
}

// Check answers a health query in-process, as a remote client would see it.
func (s *HealthService) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown marks everything NOT_SERVING and ignores later updates.
func (s *HealthService) Shutdown() {
	s.server.Shutdown()
}

func (s *HealthService) setAll(status healthpb.HealthCheckResponse_ServingStatus) {
	s.server.SetServingStatus("", status)
	s.server.SetServingStatus(PipelineServiceName, status)
}
