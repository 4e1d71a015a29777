package main

import (
	"os"
	"testing"

	"github.com/iowaguy/ting-go/pkg/config"
	"github.com/iowaguy/ting-go/pkg/logger"
)

func TestBuildQueueFromCLIPair(t *testing.T) {
	cfg := config.DefaultConfig()
	q, err := buildQueue(cfg, "R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1", "R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2")
	if err != nil {
		t.Fatalf("buildQueue failed: %v", err)
	}
	pair, ok := q.Next()
	if !ok {
		t.Fatal("expected one pair in the queue")
	}
	if pair.R1 != "R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1" {
		t.Errorf("unexpected R1: %s", pair.R1)
	}
}

func TestBuildQueueFromInputFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/pairs.txt"
	const body = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.InputFile = path
	cfg.NumRepeats = 2

	q, err := buildQueue(cfg, "", "")
	if err != nil {
		t.Fatalf("buildQueue failed: %v", err)
	}

	count := 0
	for {
		_, ok := q.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 queued pairs (1 pair x 2 repeats), got %d", count)
	}
}

func TestBuildQueueRequiresPairOrInputFile(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := buildQueue(cfg, "", ""); err == nil {
		t.Fatal("expected an error when neither a CLI pair nor InputFile is given")
	}
}

func TestResolveResultsDirectoryLeavesCustomValueAlone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ResultsDirectory = "/tmp/my-custom-results"

	resolveResultsDirectory(cfg, logger.NewDefault())

	if cfg.ResultsDirectory != "/tmp/my-custom-results" {
		t.Errorf("expected custom ResultsDirectory to be left untouched, got %q", cfg.ResultsDirectory)
	}
}

func TestResolveResultsDirectoryReplacesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg := config.DefaultConfig()
	resolveResultsDirectory(cfg, logger.NewDefault())

	if cfg.ResultsDirectory == config.DefaultConfig().ResultsDirectory {
		t.Error("expected the hardcoded default to be replaced with a resolved data directory")
	}
	if info, err := os.Stat(cfg.ResultsDirectory); err != nil || !info.IsDir() {
		t.Errorf("expected resolved results directory to exist: %v", err)
	}
}
