package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"ptstream/log"
	"ptstream/service"

	"github.com/pkg/errors"
)

const shutdownTimeout = 5 * time.Second

// Server exposes Handler on /metrics.
type Server struct {
	srv *http.Server
	lgr log.Logger
}

var _ service.Service = (*Server)(nil)

func NewServer(host string, port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		lgr: log.WithModule("metrics-server"),
	}
}

func (s *Server) Start() error {
	s.lgr.Info("serving metrics", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
