// Package grpc serves the standard gRPC health service for the sentiment
// daemon.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rimkus-dev/sentiment/internal/sentiment"
	"github.com/rimkus-dev/sentiment/internal/service"
)

// ServiceName is the health service name reporting model readiness.
const ServiceName = "sentiment.v1.Sentiment"

// Server reports SERVING for ServiceName while the shared session has an
// engine loaded. The overall health ("") is SERVING while the server runs.
type Server struct {
	server  *grpc.Server
	health  *health.Server
	service *service.Sentiment
	port    int
	logger  *slog.Logger
}

// NewServer creates a gRPC server with health and reflection registered.
func NewServer(svc *service.Sentiment, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		server:  grpc.NewServer(),
		health:  health.NewServer(),
		service: svc,
		port:    port,
		logger:  logger,
	}

	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	return s
}

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	states, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.setStatus(s.service.Session().State())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-states:
				if !ok {
					return
				}
				s.setStatus(state)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
		errCh <- s.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down gRPC server")
	s.health.Shutdown()
	s.server.GracefulStop()

	return nil
}

func (s *Server) setStatus(state sentiment.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state.Ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}
