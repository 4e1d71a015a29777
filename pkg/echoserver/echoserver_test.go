package echoserver

import (
	"net"
	"testing"
	"time"

	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/tingtype"
	"github.com/iowaguy/ting-go/pkg/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(tingtype.Endpoint{Host: "127.0.0.1", Port: 0}, logger.NewDefault())
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := s.listener.Addr().(*net.TCPAddr)
	s.endpoint.Port = uint16(addr.Port)
	return s
}

func TestServeEchoesTingFrame(t *testing.T) {
	s := newTestServer(t)
	stop := s.ServeBackground()
	defer stop()

	conn, err := net.Dial("tcp", s.Endpoint().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := wire.NewTing(1234.5)
	if _, err := conn.Write(wire.Encode(req)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, wire.MaxFrameSize)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	reply, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if reply.Ptype != wire.Ting {
		t.Errorf("expected TING reply, got %s", reply.Ptype)
	}
	if !reply.HasTime() {
		t.Error("expected reply to carry time_sec")
	}
}

func TestServeClosesOnCloseFrame(t *testing.T) {
	s := newTestServer(t)
	stop := s.ServeBackground()
	defer stop()

	conn, err := net.Dial("tcp", s.Endpoint().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(wire.Encode(wire.NewClose())); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	if n != 0 && err == nil {
		t.Errorf("expected connection to be closed after CLOSE frame, read %d bytes", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	stop := s.ServeBackground()
	stop()
	stop()
}

func TestListenOnFreePortBindsInRange(t *testing.T) {
	s, err := ListenOnFreePort("127.0.0.1", logger.NewDefault())
	if err != nil {
		t.Fatalf("ListenOnFreePort failed: %v", err)
	}
	defer s.Stop()

	port := s.Endpoint().Port
	if port < portRangeMin || port >= portRangeMax {
		t.Errorf("port %d outside expected range [%d, %d)", port, portRangeMin, portRangeMax)
	}
}
