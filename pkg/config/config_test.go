package config

import "testing"

func TestDefaultConfigFields(t *testing.T) {
	c := DefaultConfig()
	if c.DestinationAddr != "127.0.0.1" {
		t.Errorf("DestinationAddr = %q, want 127.0.0.1", c.DestinationAddr)
	}
	if c.DestinationPort != 16667 {
		t.Errorf("DestinationPort = %d, want 16667", c.DestinationPort)
	}
	if c.ControllerPort != 8008 {
		t.Errorf("ControllerPort = %d, want 8008", c.ControllerPort)
	}
	if c.SocksPort != 9008 {
		t.Errorf("SocksPort = %d, want 9008", c.SocksPort)
	}
	if c.SocksTimeout.Seconds() != 60 {
		t.Errorf("SocksTimeout = %v, want 60s", c.SocksTimeout)
	}
	if c.MaxCircuitBuildAttempts != 5 {
		t.Errorf("MaxCircuitBuildAttempts = %d, want 5", c.MaxCircuitBuildAttempts)
	}
	if c.RelayCacheTime.Hours() != 24 {
		t.Errorf("RelayCacheTime = %v, want 24h", c.RelayCacheTime)
	}
	if c.ResultsDirectory != "results" {
		t.Errorf("ResultsDirectory = %q, want results", c.ResultsDirectory)
	}
}

func TestValidateRequiresAnchors(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err == nil {
		t.Error("expected Validate to fail without W and Z set")
	}
	c.W = "AAAA"
	if err := c.Validate(); err == nil {
		t.Error("expected Validate to fail without Z set")
	}
	c.Z = "BBBB"
	if err := c.Validate(); err != nil {
		t.Errorf("expected a fully populated default config to validate, got %v", err)
	}
}

func TestValidateRejectsBadPorts(t *testing.T) {
	c := DefaultConfig()
	c.W, c.Z = "AAAA", "BBBB"
	c.DestinationPort = 99999
	if err := c.Validate(); err == nil {
		t.Error("expected an out-of-range port to fail validation")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := DefaultConfig()
	c.W = "AAAA"
	clone := c.Clone()
	clone.W = "ZZZZ"
	if c.W == clone.W {
		t.Error("expected Clone to produce an independent copy")
	}
}
