package apiv1

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type statusOnly struct {
	UnimplementedControlServer
}

func (s *statusOnly) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"clients": 1})
}

func TestControl_RoundTrip(t *testing.T) {
	methods := make(chan string, 8)
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		methods <- info.FullMethod
		return handler(ctx, req)
	}))
	RegisterControlServer(srv, &statusOnly{})
	go srv.Serve(lis)
	defer srv.Stop()

	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer cc.Close()
	client := NewControlClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.GetStatus(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Fields["clients"].GetNumberValue())
	require.Equal(t, Control_GetStatus_FullMethodName, <-methods)

	_, err = client.GetHandlerMap(ctx, &emptypb.Empty{})
	require.Equal(t, codes.Unimplemented, status.Code(err))
	require.Equal(t, Control_GetHandlerMap_FullMethodName, <-methods)

	_, err = client.ListTopics(ctx, &emptypb.Empty{})
	require.Equal(t, codes.Unimplemented, status.Code(err))
	require.Equal(t, Control_ListTopics_FullMethodName, <-methods)
}
