package queue

import (
	"context"
	"errors"

	"github.com/matheus3301/tgfilter/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// gRPC service names under which the daemon exposes its queues.
const (
	InboundService  = "tgfilter.v1.InboundQueue"
	OutboundService = "tgfilter.v1.OutboundQueue"
)

// queueServer is the handler type checked by grpc.Server.RegisterService.
type queueServer interface {
	Put(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Get(ctx context.Context, in *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// Register exposes q on s under the given service name. Items travel as
// msgpack inside a BytesValue.
func Register[T any](s grpc.ServiceRegistrar, service string, q *Bounded[T]) {
	s.RegisterService(serviceDesc(service), &server[T]{q: q})
}

func serviceDesc(service string) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*queueServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Put",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := new(wrapperspb.BytesValue)
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return srv.(queueServer).Put(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/Put"}
					return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
						return srv.(queueServer).Put(ctx, req.(*wrapperspb.BytesValue))
					})
				},
			},
			{
				MethodName: "Get",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := new(emptypb.Empty)
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return srv.(queueServer).Get(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/Get"}
					return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
						return srv.(queueServer).Get(ctx, req.(*emptypb.Empty))
					})
				},
			},
		},
		Metadata: "tgfilter/v1/queue",
	}
}

type server[T any] struct {
	q *Bounded[T]
}

// Put blocks the RPC until the queue has room, so a full queue pushes back
// on the remote producer.
func (s *server[T]) Put(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var item T
	if err := wire.Decode(in, &item); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.q.Put(ctx, item); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *server[T]) Get(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	item, err := s.q.Get(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := wire.Encode(item)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	if errors.Is(err, ErrClosed) {
		return status.Error(codes.FailedPrecondition, ErrClosed.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// Client is a Queue served by another process. Calls wait for the daemon
// to become reachable instead of failing fast.
type Client[T any] struct {
	conn    grpc.ClientConnInterface
	service string
}

// NewClient returns a remote queue bound to service on conn.
func NewClient[T any](conn grpc.ClientConnInterface, service string) *Client[T] {
	return &Client[T]{conn: conn, service: service}
}

// Put sends item and returns once the remote queue has accepted it.
func (c *Client[T]) Put(ctx context.Context, item T) error {
	in, err := wire.Encode(item)
	if err != nil {
		return err
	}
	out := new(emptypb.Empty)
	if err := c.conn.Invoke(ctx, "/"+c.service+"/Put", in, out, grpc.WaitForReady(true)); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Get waits for the next remote item.
func (c *Client[T]) Get(ctx context.Context) (T, error) {
	var item T
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, "/"+c.service+"/Get", new(emptypb.Empty), out, grpc.WaitForReady(true)); err != nil {
		return item, fromStatus(err)
	}
	if err := wire.Decode(out, &item); err != nil {
		return item, err
	}
	return item, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return ErrClosed
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return err
}
