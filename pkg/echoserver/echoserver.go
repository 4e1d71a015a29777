// Package echoserver implements the local TCP responder ting's measurement
// client contacts over each Tor circuit. It reads wire frames from one
// connection at a time, answers each TING with the server's wall clock,
// and closes the connection on CLOSE.
package echoserver

import (
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/iowaguy/ting-go/pkg/autoconfig"
	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
	"github.com/iowaguy/ting-go/pkg/wire"
)

const (
	messageSize  = wire.MaxFrameSize
	acceptTimeout = 500 * time.Millisecond
	defaultPort  = 16667
	portRangeMin = 16000
	portRangeMax = 17000
)

// DefaultEndpoint is the endpoint the responder binds to when the caller
// doesn't request an auto-chosen port.
var DefaultEndpoint = tingtype.Endpoint{Host: "127.0.0.1", Port: defaultPort}

// Server is a scoped TCP echo responder. The zero value is not usable;
// construct with New.
type Server struct {
	endpoint tingtype.Endpoint
	listener *net.TCPListener
	log      *logger.Logger

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Server bound to endpoint. Call Listen to acquire the
// socket before Serve or ServeBackground.
func New(endpoint tingtype.Endpoint, log *logger.Logger) *Server {
	return &Server{
		endpoint: endpoint,
		log:      log.Component("echoserver"),
		shutdown: make(chan struct{}),
	}
}

// Listen binds and starts listening on the server's endpoint. Port-in-use
// is reported distinctly so callers can retry with a different port drawn
// from the allowed auto-assign range; other bind failures are fatal.
func (s *Server) Listen() error {
	addr := &net.TCPAddr{IP: net.ParseIP(s.endpoint.Host), Port: int(s.endpoint.Port)}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return tingerr.Wrap(tingerr.KindControllerUnavailable, "bind echo responder", err)
	}
	s.listener = l
	s.log.Info("echo responder listening", "endpoint", s.endpoint.String())
	return nil
}

// IsAddrInUse reports whether err (from Listen) is a recoverable
// address-in-use failure.
func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// ListenOnFreePort binds to a randomized port in [16000, 17000), retrying
// on address-in-use the way the original auto-port responder does.
func ListenOnFreePort(host string, log *logger.Logger) (*Server, error) {
	for attempts := 0; attempts < 50; attempts++ {
		port, err := autoconfig.FindAvailablePortInRange(portRangeMin, portRangeMax)
		if err != nil {
			return nil, tingerr.Wrap(tingerr.KindControllerUnavailable, "find free echo responder port", err)
		}
		s := New(tingtype.Endpoint{Host: host, Port: uint16(port)}, log)
		if err := s.Listen(); err != nil {
			if IsAddrInUse(err) {
				continue
			}
			return nil, err
		}
		return s, nil
	}
	return nil, tingerr.New(tingerr.KindControllerUnavailable, "exhausted retries finding a free echo responder port")
}

// Endpoint returns the endpoint the server is bound to.
func (s *Server) Endpoint() tingtype.Endpoint {
	return s.endpoint
}

// ServeBackground starts Serve on a background goroutine and returns a
// stop function that signals shutdown and waits for the goroutine to
// exit, mirroring the scoped-resource lifecycle the rest of ting uses.
func (s *Server) ServeBackground() (stop func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Serve()
	}()
	return s.Stop
}

// Serve runs the accept loop until Stop is called. Each accepted
// connection is served to completion before the next Accept, matching
// the responder's "one client at a time" contract.
func (s *Server) Serve() {
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}
		s.serveOne()
	}
}

// Stop signals the accept loop to exit and closes the listening socket.
// Safe to call more than once.
func (s *Server) Stop() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) serveOne() {
	s.listener.SetDeadline(time.Now().Add(acceptTimeout))
	conn, err := s.listener.Accept()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		return
	}
	s.log.Debug("connection accepted", "remote", conn.RemoteAddr())
	defer conn.Close()

	for {
		buf := make([]byte, messageSize)
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			s.log.Debug("connection closed")
			return
		}

		f, err := wire.Decode(buf[:n])
		if err != nil {
			s.log.Debug("malformed frame, closing connection", "error", err)
			return
		}
		if f.Ptype == wire.Close {
			s.log.Debug("client sent CLOSE")
			return
		}

		reply := wire.NewTing(float64(time.Now().UnixNano()) / float64(time.Second))
		if _, err := conn.Write(wire.Encode(reply)); err != nil {
			s.log.Debug("failed to write reply", "error", err)
			return
		}
	}
}
