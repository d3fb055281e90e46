package api

import (
	"context"
	"fmt"
	"io"

	"github.com/matheus3301/tgfilter/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a daemon over its Unix domain socket. Conn is also used
// by remote queue clients.
type Client struct {
	Conn *grpc.ClientConn
}

// Dial connects lazily to the daemon socket; the first call waits for it.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{Conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.Conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	in, err := wire.Encode(req)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.Conn.Invoke(ctx, "/"+ControlServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := wire.Decode(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Status", &StatusRequest{})
}

func (c *Client) AddFilter(ctx context.Context, userID int64, pattern string) (*Filter, error) {
	resp, err := invoke[AddFilterResponse](ctx, c, "AddFilter", &AddFilterRequest{UserID: userID, Pattern: pattern})
	if err != nil {
		return nil, err
	}
	return &resp.Filter, nil
}

func (c *Client) DisableFilter(ctx context.Context, userID, filterID int64) error {
	_, err := invoke[DisableFilterResponse](ctx, c, "DisableFilter", &DisableFilterRequest{UserID: userID, FilterID: filterID})
	return err
}

// ListFilters lists a user's active filters; userID 0 lists all of them.
func (c *Client) ListFilters(ctx context.Context, userID int64) ([]Filter, error) {
	resp, err := invoke[ListFiltersResponse](ctx, c, "ListFilters", &ListFiltersRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.Filters, nil
}

func (c *Client) UpsertBinding(ctx context.Context, d wire.Destination) error {
	_, err := invoke[UpsertBindingResponse](ctx, c, "UpsertBinding", &UpsertBindingRequest{Destination: d})
	return err
}

func (c *Client) SetUserStatus(ctx context.Context, userID int64, active bool) error {
	_, err := invoke[SetUserStatusResponse](ctx, c, "SetUserStatus", &SetUserStatusRequest{UserID: userID, Active: active})
	return err
}

func (c *Client) StalledRecords(ctx context.Context, req *StalledRecordsRequest) ([]DeliveryRecord, error) {
	resp, err := invoke[StalledRecordsResponse](ctx, c, "StalledRecords", req)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

var watchStreamDesc = &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}

// Watch calls fn for every daemon event whose kind starts with prefix,
// until ctx ends or the stream breaks. A clean end of stream returns nil.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(*Event)) error {
	stream, err := c.Conn.NewStream(ctx, watchStreamDesc, "/"+ControlServiceName+"/Watch")
	if err != nil {
		return err
	}
	in, err := wire.Encode(&WatchRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(out); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		evt := new(Event)
		if err := wire.Decode(out, evt); err != nil {
			return err
		}
		fn(evt)
	}
}
