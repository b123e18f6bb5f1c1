package rpc

import (
	"context"
	"net"
	"strconv"

	"ptstream/codec"
	apiv1 "ptstream/rpc/v1"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

var ErrMalformedResponse = errors.New("malformed rpc response")

// Client is a typed wrapper over the Control service.
type Client struct {
	api apiv1.ControlClient
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{api: apiv1.NewControlClient(cc)}
}

func Dial(host string, port int) (*grpc.ClientConn, error) {
	return grpc.NewClient(
		net.JoinHostPort(host, strconv.Itoa(port)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

func (c *Client) HandlerMap(ctx context.Context) ([]codec.HandlerPair, error) {
	res, err := c.api.GetHandlerMap(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}

	pairs := make([]codec.HandlerPair, 0, len(res.Values))
	for i, v := range res.Values {
		list := v.GetListValue()
		if list == nil || len(list.Values) != 2 {
			return nil, errors.Wrapf(ErrMalformedResponse, "handler map entry %d", i)
		}
		pairs = append(pairs, codec.HandlerPair{
			TypeName:    list.Values[0].GetStringValue(),
			HandlerName: list.Values[1].GetStringValue(),
		})
	}
	return pairs, nil
}

type Status struct {
	Clients     int
	Topics      int
	TxBytes     uint64
	RxBytes     uint64
	Handlers    int
	Fingerprint string
	Version     string
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	res, err := c.api.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	f := res.GetFields()
	return &Status{
		Clients:     int(f["clients"].GetNumberValue()),
		Topics:      int(f["topics"].GetNumberValue()),
		TxBytes:     uint64(f["tx_bytes"].GetNumberValue()),
		RxBytes:     uint64(f["rx_bytes"].GetNumberValue()),
		Handlers:    int(f["handlers"].GetNumberValue()),
		Fingerprint: f["fingerprint"].GetStringValue(),
		Version:     f["version"].GetStringValue(),
	}, nil
}

type TopicInfo struct {
	Topic   string
	LastSeq uint64
}

func (c *Client) Topics(ctx context.Context) ([]TopicInfo, error) {
	res, err := c.api.ListTopics(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	out := make([]TopicInfo, 0, len(res.Values))
	for i, v := range res.Values {
		s := v.GetStructValue()
		if s == nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "topic entry %d", i)
		}
		out = append(out, TopicInfo{
			Topic:   s.Fields["topic"].GetStringValue(),
			LastSeq: uint64(s.Fields["last_seq"].GetNumberValue()),
		})
	}
	return out, nil
}
