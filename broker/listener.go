package broker

import (
	"fmt"
	"net"
	"sync"

	"ptstream/log"
	"ptstream/service"

	"github.com/pkg/errors"
)

// Acceptor takes ownership of an accepted connection and serves it until it
// closes.
type Acceptor interface {
	Accept(conn net.Conn) error
}

type Listener struct {
	host     string
	port     int
	acceptor Acceptor
	lgr      log.Logger
	quitCh   chan struct{}
	once     sync.Once
	addrMu   sync.Mutex
	addr     net.Addr
}

var _ service.Service = (*Listener)(nil)

func NewListener(host string, port int, acceptor Acceptor) *Listener {
	return &Listener{
		host:     host,
		port:     port,
		acceptor: acceptor,
		lgr:      log.WithModule("listener"),
		quitCh:   make(chan struct{}),
	}
}

func (l *Listener) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", l.host, l.port))
	if err != nil {
		return err
	}
	l.addrMu.Lock()
	l.addr = listener.Addr()
	l.addrMu.Unlock()

	go func() {
		<-l.quitCh
		if err := listener.Close(); err != nil {
			l.lgr.Error("failed to shut down listener", "err", err)
		} else {
			l.lgr.Info("listener shut down")
		}
	}()

	l.lgr.Info("listening for connections", "addr", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-l.quitCh:
				return nil
			default:
			}
			return errors.Wrap(err, "error accepting connection")
		}
		l.lgr.Debug("accepted new connection", "remote_addr", conn.RemoteAddr())
		go func() {
			if err := l.acceptor.Accept(conn); err != nil {
				l.lgr.Info(
					"connection closed",
					"remote_addr", conn.RemoteAddr(),
					"reason", err,
				)
			}
		}()
	}
}

func (l *Listener) Stop() error {
	l.once.Do(func() {
		close(l.quitCh)
	})
	return nil
}

// Addr returns the bound address, or nil before Start has bound.
func (l *Listener) Addr() net.Addr {
	l.addrMu.Lock()
	defer l.addrMu.Unlock()
	return l.addr
}
