package cli

import (
	"ptstream/rpc"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

func DialRPC(cmd *cobra.Command) (*rpc.Client, *grpc.ClientConn, error) {
	rpcHost, _ := cmd.Flags().GetString(FlagRPCHost)
	rpcPort, _ := cmd.Flags().GetInt(FlagRPCPort)
	conn, err := rpc.Dial(rpcHost, rpcPort)
	if err != nil {
		return nil, nil, err
	}
	return rpc.NewClient(conn), conn, nil
}
