package api

import (
	"context"

	"github.com/matheus3301/tgfilter/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ControlServiceName is the gRPC service name of the control API.
const ControlServiceName = "tgfilter.v1.Control"

// ControlServer is the handler type checked by grpc.Server.RegisterService.
type ControlServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	AddFilter(context.Context, *AddFilterRequest) (*AddFilterResponse, error)
	DisableFilter(context.Context, *DisableFilterRequest) (*DisableFilterResponse, error)
	ListFilters(context.Context, *ListFiltersRequest) (*ListFiltersResponse, error)
	UpsertBinding(context.Context, *UpsertBindingRequest) (*UpsertBindingResponse, error)
	SetUserStatus(context.Context, *SetUserStatusRequest) (*SetUserStatusResponse, error)
	StalledRecords(context.Context, *StalledRecordsRequest) (*StalledRecordsResponse, error)
	Watch(context.Context, *WatchRequest, func(*Event) error) error
}

var _ ControlServer = (*ControlService)(nil)

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary("Status", ControlServer.Status)},
		{MethodName: "AddFilter", Handler: unary("AddFilter", ControlServer.AddFilter)},
		{MethodName: "DisableFilter", Handler: unary("DisableFilter", ControlServer.DisableFilter)},
		{MethodName: "ListFilters", Handler: unary("ListFilters", ControlServer.ListFilters)},
		{MethodName: "UpsertBinding", Handler: unary("UpsertBinding", ControlServer.UpsertBinding)},
		{MethodName: "SetUserStatus", Handler: unary("SetUserStatus", ControlServer.SetUserStatus)},
		{MethodName: "StalledRecords", Handler: unary("StalledRecords", ControlServer.StalledRecords)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler:       watchHandler,
		},
	},
	Metadata: "tgfilter/v1/control",
}

// unary adapts a typed method to a grpc.MethodHandler. Requests and
// responses travel as msgpack inside a BytesValue.
func unary[Req, Resp any](method string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			r := new(Req)
			if err := wire.Decode(req.(*wrapperspb.BytesValue), r); err != nil {
				return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
			}
			resp, err := call(srv.(ControlServer), ctx, r)
			if err != nil {
				return nil, err
			}
			out, err := wire.Encode(resp)
			if err != nil {
				return nil, grpcstatus.Error(codes.Internal, err.Error())
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ControlServiceName + "/" + method}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req := new(WatchRequest)
	if err := wire.Decode(in, req); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	return srv.(ControlServer).Watch(stream.Context(), req, func(evt *Event) error {
		out, err := wire.Encode(evt)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	})
}
