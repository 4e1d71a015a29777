// Package torctl adapts a Tor control-port session to the handful of
// operations ting's circuit builder needs: authenticate, pin the two
// configuration flags that keep Tor from attaching streams on its own,
// build and close circuits by explicit relay path, and watch stream
// lifecycle events so a client-chosen stream can be pinned onto a
// client-chosen circuit.
package torctl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cretz/bine/control"

	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// StreamStatus mirrors the STREAM event status field ting's attach state
// machine branches on.
type StreamStatus string

const (
	StreamNew      StreamStatus = "NEW"
	StreamDetached StreamStatus = "DETACHED"
	StreamSucceeded StreamStatus = "SUCCEEDED"
)

// StreamPurpose mirrors the STREAM event purpose field.
type StreamPurpose string

const (
	PurposeUser StreamPurpose = "USER"
)

// StreamEvent is the subset of a Tor STREAM event the attach state
// machine cares about.
type StreamEvent struct {
	StreamID   string
	Status     StreamStatus
	CircuitID  string
	TargetPort uint16
	Purpose    StreamPurpose
}

// StreamListener receives every stream event observed while it is
// registered. Implementations must be reentrant: Tor's controller
// library delivers events on its own goroutine.
type StreamListener func(StreamEvent)

// ListenerHandle identifies a registered StreamListener so it can be
// removed later.
type ListenerHandle uint64

// Controller is the adapter surface the circuit builder depends on. It
// is an interface so tests can exercise the build/attach/close dance
// without a real Tor process.
type Controller interface {
	Authenticate(ctx context.Context) error
	SetConf(ctx context.Context, key, value string) error
	NewCircuit(ctx context.Context, relays []tingtype.Fingerprint) (string, error)
	CloseCircuit(ctx context.Context, circuitID string) error
	AddStreamListener(l StreamListener) ListenerHandle
	RemoveStreamListener(h ListenerHandle)
	AttachStream(ctx context.Context, streamID, circuitID string) error
	CloseStream(ctx context.Context, streamID string) error
	Close() error
}

// BineController implements Controller on top of a real Tor control
// port session via github.com/cretz/bine/control.
type BineController struct {
	log  *logger.Logger
	conn *control.Conn

	mu        sync.Mutex
	listeners map[ListenerHandle]StreamListener
	nextID    ListenerHandle

	eventCh chan *control.Event
	done    chan struct{}
}

// Dial opens a control-port connection at addr (e.g. "127.0.0.1:8008").
func Dial(ctx context.Context, addr string, log *logger.Logger) (*BineController, error) {
	conn, err := control.DialTimeout(ctx, "tcp", addr, 10*time.Second)
	if err != nil {
		return nil, tingerr.ControllerUnavailableError("dial control port", err)
	}

	c := &BineController{
		log:       log.Component("torctl"),
		conn:      conn,
		listeners: make(map[ListenerHandle]StreamListener),
		eventCh:   make(chan *control.Event, 32),
		done:      make(chan struct{}),
	}
	go c.dispatch()
	return c, nil
}

// Authenticate performs the control-port AUTHENTICATE handshake using
// whatever credentials the Tor daemon's auth methods accept (cookie or
// null auth; password auth is handled by the caller passing it through
// the control library's configuration out of band).
func (c *BineController) Authenticate(ctx context.Context) error {
	if err := c.conn.Authenticate(""); err != nil {
		return tingerr.AuthFailedError("control port authentication failed", err)
	}
	if err := c.conn.AddEventListener(c.eventCh, control.EventCodeStream); err != nil {
		return tingerr.AuthFailedError("subscribe to STREAM events", err)
	}
	return nil
}

// SetConf sets a single Tor configuration key. Used at session start to
// pin __DisablePredictedCircuits and __LeaveStreamsUnattached.
func (c *BineController) SetConf(ctx context.Context, key, value string) error {
	if err := c.conn.SetConf(control.NewKeyVal(key, value)); err != nil {
		return tingerr.ConfigError(fmt.Sprintf("SETCONF %s=%s", key, value), err)
	}
	return nil
}

// NewCircuit submits an explicit relay path and blocks until Tor reports
// BUILT, returning the assigned circuit id.
func (c *BineController) NewCircuit(ctx context.Context, relays []tingtype.Fingerprint) (string, error) {
	path := make([]string, len(relays))
	for i, r := range relays {
		path[i] = string(r)
	}
	id, err := c.conn.NewCircuit()
	if err != nil {
		return "", tingerr.CircuitBuildFailedError("allocate circuit id", err)
	}
	if err := c.conn.ExtendCircuit(id, path...); err != nil {
		return "", tingerr.CircuitBuildFailedError("extend circuit", err)
	}
	if err := c.awaitBuilt(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (c *BineController) awaitBuilt(ctx context.Context, id string) error {
	for {
		resp, err := c.conn.Request("GETINFO circuit-status")
		if err != nil {
			return tingerr.CircuitBuildFailedError("poll circuit status", err)
		}
		pending := false
		for _, line := range resp.Data {
			fields := strings.Fields(line)
			if len(fields) >= 2 && fields[0] == id {
				if fields[1] == "BUILT" {
					return nil
				}
				pending = fields[1] != "FAILED" && fields[1] != "CLOSED"
			}
		}
		if !pending {
			return tingerr.CircuitBuildFailedError(fmt.Sprintf("circuit %s did not report BUILT", id), nil)
		}
		select {
		case <-ctx.Done():
			return tingerr.CircuitBuildFailedError(fmt.Sprintf("wait for circuit %s to build", id), ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// CloseCircuit is idempotent and best-effort.
func (c *BineController) CloseCircuit(ctx context.Context, circuitID string) error {
	if circuitID == "" {
		return nil
	}
	if err := c.conn.CloseCircuit(circuitID); err != nil {
		return tingerr.ShutdownErrorError("close circuit "+circuitID, err)
	}
	return nil
}

// AttachStream instructs Tor to bind an unattached stream to circuitID.
func (c *BineController) AttachStream(ctx context.Context, streamID, circuitID string) error {
	if err := c.conn.AttachStream(streamID, circuitID); err != nil {
		return tingerr.AttachFailedError(fmt.Sprintf("attach stream %s to circuit %s", streamID, circuitID), err)
	}
	return nil
}

// reasonMisc is the Tor control-spec CLOSESTREAM reason code used when a
// stream is closed for reasons internal to the controlling client rather
// than a network condition Tor itself observed.
const reasonMisc = 1

// CloseStream closes a stream Tor could not (or should not) attach to
// its intended circuit, per the attach state machine's contract that a
// failed attach must not leave the stream dangling. Best-effort: Tor
// may have already torn the stream down itself.
func (c *BineController) CloseStream(ctx context.Context, streamID string) error {
	if _, err := c.conn.Request(fmt.Sprintf("CLOSESTREAM %s %d", streamID, reasonMisc)); err != nil {
		return tingerr.ShutdownErrorError("close stream "+streamID, err)
	}
	return nil
}

// AddStreamListener registers l to receive every STREAM event until
// removed. Safe to call concurrently with event dispatch.
func (c *BineController) AddStreamListener(l StreamListener) ListenerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	h := c.nextID
	c.listeners[h] = l
	return h
}

// RemoveStreamListener unregisters a listener previously added with
// AddStreamListener. A no-op if h is unknown (already removed).
func (c *BineController) RemoveStreamListener(h ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, h)
}

// Close tears down the event dispatcher and the underlying control
// connection.
func (c *BineController) Close() error {
	close(c.done)
	if err := c.conn.Close(); err != nil {
		return tingerr.ShutdownErrorError("close control connection", err)
	}
	return nil
}

// dispatch forwards raw STREAM events from the control library to every
// registered listener, parsed into the fields the attach state machine
// needs. It runs for the lifetime of the controller.
func (c *BineController) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.eventCh:
			if !ok {
				return
			}
			se, ok := parseStreamEvent(ev)
			if !ok {
				continue
			}
			c.mu.Lock()
			listeners := make([]StreamListener, 0, len(c.listeners))
			for _, l := range c.listeners {
				listeners = append(listeners, l)
			}
			c.mu.Unlock()
			for _, l := range listeners {
				l(se)
			}
		}
	}
}

// parseStreamEvent extracts the fields of a STREAM event. The raw form
// is space-separated: StreamID StreamStatus CircuitID Target ...
// optional KEY=VALUE pairs including PURPOSE=.
func parseStreamEvent(ev *control.Event) (StreamEvent, bool) {
	if len(ev.Raw) == 0 {
		return StreamEvent{}, false
	}
	fields := strings.Fields(ev.Raw[0])
	if len(fields) < 4 {
		return StreamEvent{}, false
	}

	se := StreamEvent{
		StreamID:  fields[0],
		Status:    StreamStatus(fields[1]),
		CircuitID: fields[2],
	}

	if host, port, ok := strings.Cut(fields[3], ":"); ok {
		_ = host
		var p int
		fmt.Sscanf(port, "%d", &p)
		se.TargetPort = uint16(p)
	}

	for _, f := range fields[4:] {
		if k, v, ok := strings.Cut(f, "="); ok && k == "PURPOSE" {
			se.Purpose = StreamPurpose(v)
		}
	}

	return se, true
}
