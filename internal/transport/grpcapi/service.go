// Package grpcapi exposes the rover command service over gRPC. Messages
// are JSON encoded; the service is declared by hand.
package grpcapi

import (
	"context"

	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rover.RoverService"

const (
	methodSendCommand = "/" + ServiceName + "/SendCommand"
	methodGetStatus   = "/" + ServiceName + "/GetStatus"
	methodWatchStatus = "/" + ServiceName + "/WatchStatus"
)

// StatusRequest asks for the current state.
type StatusRequest struct{}

// RoverServer is the server side of RoverService.
type RoverServer interface {
	SendCommand(context.Context, *transport.Request) (*session.Ack, error)
	GetStatus(context.Context, *StatusRequest) (*session.Snapshot, error)
	WatchStatus(*StatusRequest, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendCommand", Handler: sendCommandHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchStatus", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "rover.proto",
}

func sendCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(transport.Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoverServer).SendCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSendCommand}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoverServer).SendCommand(ctx, req.(*transport.Request))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoverServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoverServer).GetStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(StatusRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RoverServer).WatchStatus(in, stream)
}
