package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTingrc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tingrc")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write tingrc fixture: %v", err)
	}
	return path
}

func TestLoadFromFileParsesKnownKeys(t *testing.T) {
	path := writeTingrc(t, `# comment
W AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA
Z BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB

DestinationAddr 10.0.0.1
DestinationPort 17000
ControllerPort 9008
SocksPort 9050
SocksTimeout 30
MaxCircuitBuildAttempts 3
NumSamples 5
NumRepeats 2
RelayList test
RelayCacheTime 12
ResultsDirectory /tmp/ting-results
InputFile pairs.txt
`)

	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.W != "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" {
		t.Errorf("W = %q", cfg.W)
	}
	if cfg.DestinationAddr != "10.0.0.1" {
		t.Errorf("DestinationAddr = %q", cfg.DestinationAddr)
	}
	if cfg.DestinationPort != 17000 {
		t.Errorf("DestinationPort = %d", cfg.DestinationPort)
	}
	if cfg.SocksTimeout != 30*time.Second {
		t.Errorf("SocksTimeout = %v", cfg.SocksTimeout)
	}
	if cfg.MaxCircuitBuildAttempts != 3 {
		t.Errorf("MaxCircuitBuildAttempts = %d", cfg.MaxCircuitBuildAttempts)
	}
	if cfg.NumSamples != 5 || cfg.NumRepeats != 2 {
		t.Errorf("NumSamples/NumRepeats = %d/%d", cfg.NumSamples, cfg.NumRepeats)
	}
	if cfg.RelayCacheTime != 12*time.Hour {
		t.Errorf("RelayCacheTime = %v", cfg.RelayCacheTime)
	}
	if cfg.ResultsDirectory != "/tmp/ting-results" {
		t.Errorf("ResultsDirectory = %q", cfg.ResultsDirectory)
	}
	if cfg.InputFile != "pairs.txt" {
		t.Errorf("InputFile = %q", cfg.InputFile)
	}
}

func TestLoadFromFileIgnoresUnknownKeys(t *testing.T) {
	path := writeTingrc(t, "W AAAA\nZ BBBB\nSomeFutureKey whatever\n")
	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("expected unknown keys to be ignored, got error: %v", err)
	}
}

func TestLoadFromFileRejectsTraversal(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadFromFile("../../etc/passwd", cfg); err == nil {
		t.Error("expected a path containing .. to be rejected")
	}
}

func TestLoadFromFileRejectsBadPort(t *testing.T) {
	path := writeTingrc(t, "DestinationPort notanumber\n")
	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err == nil {
		t.Error("expected a non-numeric port to fail")
	}
}

func TestSaveAndReloadRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.W, cfg.Z = "AAAA", "BBBB"
	cfg.NumSamples = 7

	path := filepath.Join(t.TempDir(), "tingrc.out")
	if err := SaveToFile(path, cfg); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	reloaded := DefaultConfig()
	if err := LoadFromFile(path, reloaded); err != nil {
		t.Fatalf("LoadFromFile on saved config failed: %v", err)
	}
	if reloaded.W != cfg.W || reloaded.NumSamples != cfg.NumSamples {
		t.Errorf("round trip mismatch: got %+v", reloaded)
	}
}
