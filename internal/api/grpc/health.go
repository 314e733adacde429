package grpc

import (
	"context"
	"net"
	"sort"
	"time"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"evrental-backend/internal/logger"
)

// Probe reports whether one dependency of the backend is usable.
type Probe func(ctx context.Context) error

// HealthServer serves the standard gRPC health protocol for load balancers and
// orchestrators. The overall service ("") is SERVING only while every probe
// passes; each probe is also published under its own name.
type HealthServer struct {
	server   *ggrpc.Server
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration
}

func NewHealthServer(probes map[string]Probe, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &HealthServer{
		server:   ggrpc.NewServer(ggrpc.UnaryInterceptor(loggingInterceptor)),
		health:   health.NewServer(),
		probes:   probes,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	return s
}

// Check runs every probe once and publishes the result.
func (s *HealthServer) Check(ctx context.Context) {
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		st := healthpb.HealthCheckResponse_SERVING
		if err := s.probes[name](ctx); err != nil {
			logger.Warn("Health probe failed", "probe", name, "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)
}

// Watch re-runs the probes until ctx is done.
func (s *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, s.interval)
		s.Check(probeCtx)
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Shutdown reports NOT_SERVING to watchers and drains in-flight calls.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func loggingInterceptor(ctx context.Context, req any, info *ggrpc.UnaryServerInfo, handler ggrpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger.Debug("gRPC request", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
	return resp, err
}
