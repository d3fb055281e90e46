package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/queue"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the gRPC server lifecycle for an instance daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the instance's Unix domain socket
// and exposes both queues and the control service on it.
func NewServer(
	p Params,
	logger *zap.Logger,
	control *api.ControlService,
	in inboundQueue,
	out outboundQueue,
) (*Server, error) {
	socketPath := p.socketPath()

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.RegisterControlServer(srv, control)
	queue.Register(srv, queue.InboundService, in)
	queue.Register(srv, queue.OutboundService, out)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop shuts down gracefully and removes the socket file. Open Watch streams
// are cut when ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	_ = os.Remove(s.socketPath)
}
