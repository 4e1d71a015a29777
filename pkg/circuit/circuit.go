// Package circuit implements the Circuit object: a scoped resource that
// wraps one Tor circuit, owns the SOCKS tunnel riding on it, and drives
// the sample loop used to time a round trip through the circuit.
package circuit

import (
	"context"
	"time"

	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/socksdial"
	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
	"github.com/iowaguy/ting-go/pkg/torctl"
	"github.com/iowaguy/ting-go/pkg/wire"
)

const buildBackoff = 1 * time.Second

// Config bounds one circuit's build and sampling behavior.
type Config struct {
	MaxBuildAttempts int
	SocksPort        int
	SocksTimeout     time.Duration
}

// DefaultConfig mirrors the defaults the original tool shipped with.
func DefaultConfig() Config {
	return Config{
		MaxBuildAttempts: 5,
		SocksPort:        9008,
		SocksTimeout:     60 * time.Second,
	}
}

// Sample is one successful round-trip measurement: the outbound half
// (responder's stamped time minus our send time) and the inbound half
// (our receive time minus the responder's stamped time).
type Sample struct {
	Outbound time.Duration
	Inbound  time.Duration
}

// Circuit is a scoped, single-use Tor circuit bound to one destination.
// Construct with New, then Acquire, take Samples, and Close exactly once.
type Circuit struct {
	controller torctl.Controller
	factory    *socksdial.Factory
	log        *logger.Logger

	relays []tingtype.Fingerprint
	leg    tingtype.Leg
	dest   tingtype.Endpoint
	cfg    Config

	circuitID   string
	buildTime   time.Duration
	listenerH   torctl.ListenerHandle
	hasListener bool
	tunnel      *socksdial.Tunnel

	attachErr chan error
}

// New constructs an unacquired Circuit. No Tor state exists until
// Acquire is called.
func New(controller torctl.Controller, relays []tingtype.Fingerprint, leg tingtype.Leg, dest tingtype.Endpoint, cfg Config, log *logger.Logger) *Circuit {
	return &Circuit{
		controller: controller,
		factory:    socksdial.NewFactory(cfg.SocksPort, cfg.SocksTimeout),
		log:        log.Component("circuit").Leg(leg),
		relays:     relays,
		leg:        leg,
		dest:       dest,
		cfg:        cfg,
	}
}

// Relays returns the circuit's ordered relay path.
func (c *Circuit) Relays() []tingtype.Fingerprint { return c.relays }

// Leg returns the circuit's leg tag.
func (c *Circuit) Leg() tingtype.Leg { return c.leg }

// ID returns the Tor-assigned circuit id, or "" before a successful
// Acquire.
func (c *Circuit) ID() string { return c.circuitID }

// BuildTime returns how long the successful build attempt took.
func (c *Circuit) BuildTime() time.Duration { return c.buildTime }

// Acquire builds the circuit, installs the stream listener, and opens
// the SOCKS tunnel, retrying the whole sequence up to cfg.MaxBuildAttempts
// times with a flat 1s backoff. On exhaustion returns CircuitBuildFailed.
func (c *Circuit) Acquire(ctx context.Context) error {
	err := tingerr.RetryFlat(ctx, c.cfg.MaxBuildAttempts, buildBackoff, func() error {
		return c.acquireOnce(ctx)
	})
	if err != nil && !tingerr.IsKind(err, tingerr.KindCircuitBuildFailed) {
		return tingerr.Wrap(tingerr.KindCircuitBuildFailed, "acquire circuit", err)
	}
	return err
}

func (c *Circuit) acquireOnce(ctx context.Context) error {
	start := time.Now()
	cid, err := c.controller.NewCircuit(ctx, c.relays)
	if err != nil {
		return tingerr.WrapRetryable(tingerr.KindCircuitBuildFailed, "build circuit", err)
	}
	c.circuitID = cid
	c.buildTime = time.Since(start)

	c.installListener()

	tunnel, err := c.factory.Open(ctx, c.dest)
	if err != nil {
		c.teardownFailedAttempt()
		return tingerr.WrapRetryable(tingerr.KindCircuitBuildFailed, "open SOCKS tunnel", err)
	}
	c.tunnel = tunnel

	select {
	case err := <-c.attachErr:
		if err != nil {
			c.teardownFailedAttempt()
			return tingerr.WrapRetryable(tingerr.KindAttachFailed, "attach stream", err)
		}
	case <-time.After(c.cfg.SocksTimeout):
		c.teardownFailedAttempt()
		return tingerr.WrapRetryable(tingerr.KindAttachFailed, "timed out waiting for stream attach", nil)
	}

	c.log.Circuit(c.circuitID).Info("circuit acquired", "build_time", c.buildTime)
	return nil
}

func (c *Circuit) teardownFailedAttempt() {
	if c.tunnel != nil {
		c.tunnel.Close()
		c.tunnel = nil
	}
	if c.hasListener {
		c.controller.RemoveStreamListener(c.listenerH)
		c.hasListener = false
	}
	if c.circuitID != "" {
		c.controller.CloseCircuit(context.Background(), c.circuitID)
		c.circuitID = ""
	}
}

// installListener registers the stream-attach state machine for this
// circuit's (cid, dest.port) pair. The closure captures those two values
// at install time rather than reading shared mutable state, so two
// in-flight builds never race over which id a callback attaches to.
func (c *Circuit) installListener() {
	c.attachErr = make(chan error, 1)
	cid := c.circuitID
	destPort := c.dest.Port

	c.listenerH = c.controller.AddStreamListener(func(ev torctl.StreamEvent) {
		if ev.TargetPort != destPort {
			return
		}
		switch {
		case ev.Status == torctl.StreamNew && ev.Purpose == torctl.PurposeUser:
			err := c.controller.AttachStream(context.Background(), ev.StreamID, cid)
			if err != nil {
				c.log.Stream(ev.StreamID).Warn("attach failed", "error", err)
				if closeErr := c.controller.CloseStream(context.Background(), ev.StreamID); closeErr != nil {
					c.log.Stream(ev.StreamID).Warn("failed to close stream after attach failure", "error", closeErr)
				}
				select {
				case c.attachErr <- err:
				default:
				}
				return
			}
		case ev.Status == torctl.StreamDetached && ev.CircuitID == cid:
			c.log.Stream(ev.StreamID).Warn("stream detached from circuit")
		default:
		}

		if ev.Status == torctl.StreamSucceeded && ev.CircuitID == cid {
			select {
			case c.attachErr <- nil:
			default:
			}
		}
	})
	c.hasListener = true
}

// Sample takes one round-trip measurement: send a TING frame, time the
// reply. Fails with ProbeFailed on timeout or a malformed reply; callers
// may discard the sample and keep sampling, or abandon the circuit.
func (c *Circuit) Sample() (Sample, error) {
	f := wire.NewTing(nowSeconds())
	t0 := time.Now()

	if err := c.tunnel.SetDeadline(time.Now().Add(c.cfg.SocksTimeout)); err != nil {
		return Sample{}, tingerr.ProbeFailedError("set sample deadline", err)
	}
	if _, err := c.tunnel.Write(wire.Encode(f)); err != nil {
		return Sample{}, tingerr.ProbeFailedError("send TING frame", err)
	}

	buf := make([]byte, 1024)
	n, err := c.tunnel.Read(buf)
	t1 := time.Now()
	if err != nil {
		return Sample{}, tingerr.ProbeFailedError("receive reply frame", err)
	}

	reply, err := wire.Decode(buf[:n])
	if err != nil {
		return Sample{}, tingerr.ProbeFailedError("decode reply frame", err)
	}
	if reply.Ptype != wire.Ting {
		return Sample{}, tingerr.ProbeFailedError("unexpected reply ptype", nil)
	}

	replyTime := secondsToTime(reply.TimeSec)
	return Sample{
		Outbound: replyTime.Sub(t0),
		Inbound:  t1.Sub(replyTime),
	}, nil
}

// Close releases the circuit's resources in the order the spec
// requires: CLOSE frame (best-effort) → close circuit → remove listener
// → shut down the tunnel. Any error after the CLOSE frame is logged but
// not propagated.
func (c *Circuit) Close() {
	if c.tunnel != nil {
		if _, err := c.tunnel.Write(wire.Encode(wire.NewClose())); err != nil {
			c.log.Debug("failed to send CLOSE frame", "error", err)
		}
	}

	if c.circuitID != "" {
		if err := c.controller.CloseCircuit(context.Background(), c.circuitID); err != nil {
			c.log.Circuit(c.circuitID).Warn("close circuit failed", "error", err)
		}
		c.circuitID = ""
	}

	if c.hasListener {
		c.controller.RemoveStreamListener(c.listenerH)
		c.hasListener = false
	}

	if c.tunnel != nil {
		if err := c.tunnel.Close(); err != nil {
			c.log.Debug("tunnel close failed", "error", err)
		}
		c.tunnel = nil
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func secondsToTime(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
