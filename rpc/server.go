package rpc

import (
	"context"
	"net"
	"strconv"

	"ptstream/broker"
	"ptstream/codec"
	"ptstream/journal"
	"ptstream/log"
	apiv1 "ptstream/rpc/v1"
	"ptstream/service"
	"ptstream/version"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusSource reports broker activity.
type StatusSource interface {
	Status() broker.Status
}

type Opts struct {
	Registry *codec.Registry
	Broker   StatusSource
	DB       *leveldb.DB
	Host     string
	Port     int
}

type Server struct {
	registry *codec.Registry
	broker   StatusSource
	db       *leveldb.DB
	host     string
	port     int
	srv      *grpc.Server
	lgr      log.Logger
}

var (
	_ apiv1.ControlServer = (*Server)(nil)
	_ service.Service     = (*Server)(nil)
)

func NewServer(opts *Opts) *Server {
	s := &Server{
		registry: opts.Registry,
		broker:   opts.Broker,
		db:       opts.DB,
		host:     opts.Host,
		port:     opts.Port,
		srv:      grpc.NewServer(),
		lgr:      log.WithModule("rpc-server"),
	}
	apiv1.RegisterControlServer(s.srv, s)
	return s
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve answers requests on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.lgr.Info("serving rpc", "addr", lis.Addr())
	return s.srv.Serve(lis)
}

func (s *Server) Stop() error {
	s.srv.GracefulStop()
	return nil
}

func (s *Server) GetHandlerMap(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	pairs := s.registry.Pairs()
	values := make([]interface{}, len(pairs))
	for i, pair := range pairs {
		values[i] = []interface{}{pair.TypeName, pair.HandlerName}
	}
	res, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func (s *Server) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	var st broker.Status
	if s.broker != nil {
		st = s.broker.Status()
	}
	res, err := structpb.NewStruct(map[string]interface{}{
		"clients":     st.Clients,
		"topics":      st.Topics,
		"tx_bytes":    st.TxBytes,
		"rx_bytes":    st.RxBytes,
		"handlers":    s.registry.Len(),
		"fingerprint": s.registry.Fingerprint().String(),
		"version":     version.String(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func (s *Server) ListTopics(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	if s.db == nil {
		return nil, status.Error(codes.FailedPrecondition, "journal is disabled")
	}
	topics, err := journal.Topics(s.db)
	if err != nil {
		s.lgr.Error("failed to list topics", "err", err)
		return nil, status.Error(codes.Internal, errors.Wrap(err, "error listing topics").Error())
	}
	values := make([]interface{}, len(topics))
	for i, topic := range topics {
		values[i] = map[string]interface{}{
			"topic":    topic.Topic,
			"last_seq": topic.LastSeq,
		}
	}
	res, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}
