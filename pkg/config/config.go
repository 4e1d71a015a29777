// Package config provides configuration management for a ting
// measurement session.
package config

import (
	"fmt"
	"time"

	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// Config holds everything one ting run needs: the two anchor relays,
// the responder's address, the Tor ports, and the sampling/queue
// parameters. W and Z are mandatory; every other field has a default
// filled in by DefaultConfig.
type Config struct {
	W tingtype.Fingerprint // anchor relay nearest the client
	Z tingtype.Fingerprint // anchor relay nearest the responder

	SourceAddr      string // loaded from and saved to tingrc; the SOCKS dialer does not use it
	DestinationAddr string // responder host (default 127.0.0.1)
	DestinationPort int    // responder port (default 16667)

	ControllerPort int           // Tor control port (default 8008)
	SocksPort      int           // Tor SOCKS port (default 9008)
	SocksTimeout   time.Duration // per-socket timeout (default 60s)

	MaxCircuitBuildAttempts int // build attempts per circuit before a leg gives up (default 5)

	NumSamples int // samples taken per circuit
	NumRepeats int // times the whole pair list is repeated

	RelayList      string        // "internet", "test", or a path to a cached consensus document
	RelayCacheTime time.Duration // how long a cached consensus document is trusted (default 24h)

	ResultsDirectory string // where JSON-lines result files are written (default "results")
	InputFile        string // optional file of "R1 R2" pairs, one per line
}

// DefaultConfig returns a Config with every spec-mandated default
// filled in. W and Z are left empty; the loader or CLI must supply
// them.
func DefaultConfig() *Config {
	return &Config{
		DestinationAddr:         "127.0.0.1",
		DestinationPort:         16667,
		ControllerPort:          8008,
		SocksPort:               9008,
		SocksTimeout:            60 * time.Second,
		MaxCircuitBuildAttempts: 5,
		NumSamples:              1,
		NumRepeats:              1,
		RelayList:               "test",
		RelayCacheTime:          24 * time.Hour,
		ResultsDirectory:        "results",
	}
}

// Validate checks that the configuration is complete and internally
// consistent.
func (c *Config) Validate() error {
	if c.W == "" {
		return fmt.Errorf("W (anchor relay nearest the client) is required")
	}
	if c.Z == "" {
		return fmt.Errorf("Z (anchor relay nearest the responder) is required")
	}
	if c.DestinationPort < 1 || c.DestinationPort > 65535 {
		return fmt.Errorf("invalid DestinationPort: %d", c.DestinationPort)
	}
	if c.ControllerPort < 1 || c.ControllerPort > 65535 {
		return fmt.Errorf("invalid ControllerPort: %d", c.ControllerPort)
	}
	if c.SocksPort < 1 || c.SocksPort > 65535 {
		return fmt.Errorf("invalid SocksPort: %d", c.SocksPort)
	}
	if c.SocksTimeout <= 0 {
		return fmt.Errorf("SocksTimeout must be positive")
	}
	if c.MaxCircuitBuildAttempts < 1 {
		return fmt.Errorf("MaxCircuitBuildAttempts must be at least 1")
	}
	if c.NumSamples < 1 {
		return fmt.Errorf("NumSamples must be at least 1")
	}
	if c.NumRepeats < 1 {
		return fmt.Errorf("NumRepeats must be at least 1")
	}
	if c.RelayList == "" {
		return fmt.Errorf("RelayList is required (internet, test, or a path)")
	}
	if c.RelayCacheTime <= 0 {
		return fmt.Errorf("RelayCacheTime must be positive")
	}
	if c.ResultsDirectory == "" {
		return fmt.Errorf("ResultsDirectory is required")
	}
	return nil
}

// Clone creates a copy of the configuration, safe for a caller to
// mutate independently of the original.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
