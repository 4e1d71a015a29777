// Package tingclient builds the three circuit templates a measurement
// needs for one target pair, and resolves a relay's IP address to its
// fingerprint from a loaded relay list. cmd/ting does not use the
// resolver; pairs given on its command line are fingerprints.
package tingclient

import (
	"github.com/iowaguy/ting-go/pkg/circuit"
	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/tingtype"
	"github.com/iowaguy/ting-go/pkg/torctl"
)

// Client holds the two anchor relays, the destination endpoint, and the
// shared controller handle every circuit for this session is built from.
type Client struct {
	controller torctl.Controller
	w, z       tingtype.Fingerprint
	dest       tingtype.Endpoint
	circuitCfg circuit.Config
	log        *logger.Logger
}

// New constructs a Client for one measurement session. It lives for the
// lifetime of the session; it owns no circuits itself.
func New(controller torctl.Controller, w, z tingtype.Fingerprint, dest tingtype.Endpoint, circuitCfg circuit.Config, log *logger.Logger) *Client {
	return &Client{
		controller: controller,
		w:          w,
		z:          z,
		dest:       dest,
		circuitCfg: circuitCfg,
		log:        log.Component("tingclient"),
	}
}

// Templates holds the three unacquired circuits for one target pair.
type Templates struct {
	X, Y, XY *circuit.Circuit
}

// All returns the three circuits in a stable order for callers that
// don't care which leg is which.
func (t Templates) All() []*circuit.Circuit {
	return []*circuit.Circuit{t.X, t.Y, t.XY}
}

// TemplateGen builds the X, Y, and XY circuit objects for a target pair:
// X = [W, R1, Z], Y = [W, R2, Z], XY = [W, R1, R2, Z]. None are acquired
// yet; the caller drives Acquire/Sample/Close on each in turn.
func (c *Client) TemplateGen(pair tingtype.RelayPair) Templates {
	x := circuit.New(c.controller, []tingtype.Fingerprint{c.w, pair.R1, c.z}, tingtype.LegX, c.dest, c.circuitCfg, c.log)
	y := circuit.New(c.controller, []tingtype.Fingerprint{c.w, pair.R2, c.z}, tingtype.LegY, c.dest, c.circuitCfg, c.log)
	xy := circuit.New(c.controller, []tingtype.Fingerprint{c.w, pair.R1, pair.R2, c.z}, tingtype.LegXY, c.dest, c.circuitCfg, c.log)
	return Templates{X: x, Y: y, XY: xy}
}
