package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Server serves the node service and the HTTP surface (admin, cluster,
// metrics) on a single port
type Server struct {
	address     string
	port        int
	handle      node.Handle
	httpHandler http.Handler

	server     *grpc.Server
	httpServer *http.Server
	listener   net.Listener
	mux        cmux.CMux

	mu      sync.Mutex
	stopped bool
}

// ServerConfig holds configuration for the gRPC server
type ServerConfig struct {
	Address     string
	Port        int
	Handle      node.Handle  // Node service implementation, normally *node.Local
	HTTPHandler http.Handler // Optional, served for HTTP/1 connections
	Listener    net.Listener // Optional pre-bound listener, overrides Address and Port
}

func NewServer(config ServerConfig) *Server {
	return &Server{
		address:     config.Address,
		port:        config.Port,
		handle:      config.Handle,
		httpHandler: config.HTTPHandler,
		listener:    config.Listener,
	}
}

// metricsInterceptor counts served calls by method and result
func metricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)

		method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
		result := "ok"
		if err != nil {
			result = "error"
			log.Debug().Err(err).Str("method", method).Msg("Node call failed")
		}
		telemetry.RPCRequestsTotal.With(method, result).Inc()
		return resp, err
	}
}

// Start listens and serves in the background
func (s *Server) Start() error {
	listener := s.listener
	if listener == nil {
		addr := fmt.Sprintf("%s:%d", s.address, s.port)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		listener = l
	}

	s.listener = listener
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(
			UnaryServerInterceptor(),
			metricsInterceptor(),
			errorInterceptor(),
		),
	)
	s.server.RegisterService(&NodeServiceDesc, s.handle)

	log.Info().
		Str("address", listener.Addr().String()).
		Str("node", s.handle.Peer().String()).
		Msg("Starting node server")

	s.mux = cmux.New(listener)
	httpListener := s.mux.Match(cmux.HTTP1Fast())
	grpcListener := s.mux.Match(cmux.Any())

	httpHandler := s.httpHandler
	if httpHandler == nil {
		httpHandler = http.NotFoundHandler()
	}
	s.httpServer = &http.Server{
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	go func() {
		if err := s.server.Serve(grpcListener); err != nil && !errors.Is(err, cmux.ErrListenerClosed) {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	go func() {
		if err := s.mux.Serve(); err != nil && !s.isStopped() {
			log.Error().Err(err).Msg("cmux failed")
		}
	}()

	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop gracefully stops the server. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped || s.server == nil {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	log.Info().Msg("Stopping node server")

	// Closing the root listener ends cmux, which unblocks both accept loops
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Msg("Listener close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Debug().Err(err).Msg("HTTP shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}
