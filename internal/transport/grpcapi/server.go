package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/roverscan/rovermap/internal/engine"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	watchBuffer     = 8
	shutdownTimeout = 5 * time.Second
)

// Engine is the part of the engine the service drives.
type Engine interface {
	transport.Commander
	Snapshot() session.Snapshot
	Subscribe(buffer int) (<-chan session.Snapshot, func())
}

// Server serves RoverService for one engine.
type Server struct {
	engine Engine
	log    *slog.Logger
	grpc   *grpc.Server

	stopOnce sync.Once
	stopping chan struct{}
}

var _ RoverServer = (*Server)(nil)

// NewServer creates the gRPC server and registers the service.
func NewServer(e Engine, log *slog.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		engine:   e,
		log:      log.With("transport", "grpc"),
		stopping: make(chan struct{}),
	}
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.logUnary),
	}, opts...)
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("gRPC listening", "address", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s.Serve(lis)
}

// Stop ends status streams and stops the server, waiting briefly for
// in-flight calls.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopping)
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			s.grpc.Stop()
		}
	})
}

// SendCommand applies one command and returns its acknowledgement. A
// command the engine rejects is a failed ack, not an RPC error.
func (s *Server) SendCommand(ctx context.Context, req *transport.Request) (*session.Ack, error) {
	cmd, err := req.Command(s.engine.Defaults())
	if err != nil {
		return nil, toStatus(err)
	}
	ack, err := s.engine.Submit(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ack, nil
}

// GetStatus returns the last published snapshot.
func (s *Server) GetStatus(ctx context.Context, _ *StatusRequest) (*session.Snapshot, error) {
	snap := s.engine.Snapshot()
	return &snap, nil
}

// WatchStatus streams every published snapshot until the client leaves.
func (s *Server) WatchStatus(_ *StatusRequest, stream grpc.ServerStream) error {
	ch, unsubscribe := s.engine.Subscribe(watchBuffer)
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopping:
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&snap); err != nil {
				return err
			}
		}
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warn("gRPC call failed", "method", info.FullMethod, "code", status.Code(err).String(), "error", err)
		return resp, err
	}
	s.log.Debug("gRPC call", "method", info.FullMethod, "duration", time.Since(start))
	return resp, nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, rover.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, rover.ErrUnknownCommand):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, session.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrCorruptState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, engine.ErrBusy):
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
