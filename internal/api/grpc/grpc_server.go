package grpc

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the matching worker in
// addition to the server-wide "" entry.
const ServiceName = "exchange.Worker"

// GRPCServer serves the standard gRPC health protocol for a worker. The
// reported status follows the readiness function, polled every interval.
type GRPCServer struct {
	server   *grpc.Server
	health   *grpchealth.Server
	ready    func(ctx context.Context) bool
	interval time.Duration
	logger   *zap.Logger
}

func NewGRPCServer(ready func(ctx context.Context) bool, interval time.Duration, logger *zap.Logger) *GRPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	s := &GRPCServer{
		server:   grpc.NewServer(),
		health:   grpchealth.NewServer(),
		ready:    ready,
		interval: interval,
		logger:   logger,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *GRPCServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Sync sets the health status from the readiness function once.
func (s *GRPCServer) Sync(ctx context.Context) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready(ctx) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.setStatus(status)
}

// Serve accepts connections on lis and keeps the health status current until
// ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.Shutdown(5 * time.Second)
	}()
	s.logger.Info("grpc health server starting", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Sync(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) Shutdown(timeout time.Duration) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.server.Stop()
	}
}
