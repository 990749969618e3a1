package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls RoverService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the service at addr. The connection is made
// lazily on the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client for %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send submits a request and waits for its acknowledgement.
func (c *Client) Send(ctx context.Context, req *transport.Request) (*session.Ack, error) {
	out := new(session.Ack)
	if err := c.conn.Invoke(ctx, methodSendCommand, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendCommand submits cmd. A zero magnitude selects the server default.
func (c *Client) SendCommand(ctx context.Context, cmd rover.Command) (*session.Ack, error) {
	return c.Send(ctx, transport.FromCommand(cmd))
}

// SendText submits a command line, parsed with the server defaults.
func (c *Client) SendText(ctx context.Context, line string) (*session.Ack, error) {
	return c.Send(ctx, &transport.Request{Text: line})
}

// Status returns the server's last published snapshot.
func (c *Client) Status(ctx context.Context) (*session.Snapshot, error) {
	out := new(session.Snapshot)
	if err := c.conn.Invoke(ctx, methodGetStatus, &StatusRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch calls fn with every snapshot until ctx is done, the server ends the
// stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(session.Snapshot) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodWatchStatus)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&StatusRequest{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		var snap session.Snapshot
		if err := stream.RecvMsg(&snap); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}
