// Package http exposes the sentiment service over HTTP and WebSocket.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rimkus-dev/sentiment/internal/metrics"
	"github.com/rimkus-dev/sentiment/internal/service"
	"github.com/rimkus-dev/sentiment/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Sentiment      *service.Sentiment
	Models         ModelLister
	Registry       *prometheus.Registry
	Logger         *slog.Logger
	AllowedOrigins []string
	Port           int
}

// Server serves the sentiment HTTP API.
type Server struct {
	api     huma.API
	handler http.Handler
	ws      *WebSocketHandler
	port    int
	logger  *slog.Logger
}

// NewServer creates a server and registers every route.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.NewRegistry()
	}

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("sentimentd", version.Version))

	NewSentimentHandler(api, opts.Sentiment)
	NewHealthHandler(api, opts.Sentiment, opts.Models)

	ws := NewWebSocketHandler(opts.Sentiment, metrics.NewWebSocketMetrics(opts.Registry), opts.AllowedOrigins, opts.Logger)
	mux.Handle("GET /ws", ws)
	mux.Handle("GET /metrics", metrics.Handler(opts.Registry))

	httpMetrics := metrics.NewHTTPMetrics(opts.Registry)

	return &Server{
		api:     api,
		handler: httpMetrics.Middleware(mux),
		ws:      ws,
		port:    opts.Port,
		logger:  opts.Logger,
	}
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured port until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.ws.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}
