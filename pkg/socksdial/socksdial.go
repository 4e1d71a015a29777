// Package socksdial produces tunnels through the local Tor SOCKS port.
// Each tunnel carries a unique username/password pair so Tor treats it
// as a distinct stream-isolation bucket and opens a fresh stream for it.
// The stream-attach listener in pkg/circuit does not look at these
// credentials; it matches streams by destination port.
package socksdial

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/proxy"

	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// DefaultSocksHost is the loopback address Tor's SOCKS listener binds to.
const DefaultSocksHost = "127.0.0.1"

// DefaultSocksTimeout is the receive timeout applied to tunnels when the
// caller doesn't override it.
const DefaultSocksTimeout = 60 * time.Second

// Tunnel is a single isolated SOCKS5 connection through Tor.
type Tunnel struct {
	conn     net.Conn
	username string
}

// Factory creates isolated tunnels against one SOCKS port.
type Factory struct {
	socksPort int
	timeout   time.Duration
}

// NewFactory builds a Factory that dials 127.0.0.1:socksPort.
func NewFactory(socksPort int, timeout time.Duration) *Factory {
	if timeout <= 0 {
		timeout = DefaultSocksTimeout
	}
	return &Factory{socksPort: socksPort, timeout: timeout}
}

// Open connects to dest through a freshly isolated Tor stream. The
// returned Tunnel's username is exposed so callers can correlate it with
// a Tor stream-event's source, if needed for diagnostics.
func (f *Factory) Open(ctx context.Context, dest tingtype.Endpoint) (*Tunnel, error) {
	username := uuid.NewString()
	password := uuid.NewString()

	auth := &proxy.Auth{User: username, Password: password}
	addr := fmt.Sprintf("%s:%d", DefaultSocksHost, f.socksPort)

	dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		return nil, tingerr.Wrap(tingerr.KindControllerUnavailable, "construct SOCKS5 dialer", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	var conn net.Conn
	if ok {
		conn, err = contextDialer.DialContext(ctx, "tcp", dest.String())
	} else {
		conn, err = dialer.Dial("tcp", dest.String())
	}
	if err != nil {
		return nil, tingerr.WrapRetryable(tingerr.KindAttachFailed, "SOCKS5 connect to "+dest.String(), err)
	}

	if err := conn.SetDeadline(time.Now().Add(f.timeout)); err != nil {
		conn.Close()
		return nil, tingerr.Wrap(tingerr.KindProbeFailed, "set tunnel deadline", err)
	}

	return &Tunnel{conn: conn, username: username}, nil
}

// Username returns the isolation username this tunnel authenticated
// with.
func (t *Tunnel) Username() string {
	return t.username
}

// Write sends b on the tunnel.
func (t *Tunnel) Write(b []byte) (int, error) {
	return t.conn.Write(b)
}

// Read reads into b from the tunnel.
func (t *Tunnel) Read(b []byte) (int, error) {
	return t.conn.Read(b)
}

// SetDeadline refreshes the tunnel's read/write deadline, used before
// each sample so a hung probe fails with a bounded timeout.
func (t *Tunnel) SetDeadline(d time.Time) error {
	return t.conn.SetDeadline(d)
}

// Close shuts down the write half of the connection, then closes it. The
// CloseWrite error is swallowed, matching the release order the circuit
// object is responsible for enforcing.
func (t *Tunnel) Close() error {
	if tcp, ok := t.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	return t.conn.Close()
}
