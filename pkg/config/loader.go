// Package config provides tingrc file loading: a torrc-style
// whitespace `key value` per line format, unknown keys ignored.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// LoadFromFile loads a tingrc file into cfg. Lines starting with #
// are comments; empty lines are ignored. Each line is "Key Value".
// Unknown keys are silently ignored so a tingrc can carry comments or
// forward-compatible settings.
func LoadFromFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validatePath(path); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - path is validated by validatePath
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		key := parts[0]
		value := ""
		if len(parts) > 1 {
			value = strings.Join(parts[1:], " ")
		}

		if err := processConfigOption(cfg, key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// processConfigOption applies one tingrc key/value pair to cfg.
func processConfigOption(cfg *Config, key, value string) error {
	switch key {
	case "W":
		cfg.W = tingtype.Fingerprint(value)

	case "Z":
		cfg.Z = tingtype.Fingerprint(value)

	case "SourceAddr":
		cfg.SourceAddr = value

	case "DestinationAddr":
		cfg.DestinationAddr = value

	case "DestinationPort":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DestinationPort value: %s", value)
		}
		cfg.DestinationPort = port

	case "ControllerPort":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ControllerPort value: %s", value)
		}
		cfg.ControllerPort = port

	case "SocksPort":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SocksPort value: %s", value)
		}
		cfg.SocksPort = port

	case "SocksTimeout":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SocksTimeout value: %s", value)
		}
		cfg.SocksTimeout = time.Duration(secs) * time.Second

	case "MaxCircuitBuildAttempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MaxCircuitBuildAttempts value: %s", value)
		}
		cfg.MaxCircuitBuildAttempts = n

	case "NumSamples":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NumSamples value: %s", value)
		}
		cfg.NumSamples = n

	case "NumRepeats":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NumRepeats value: %s", value)
		}
		cfg.NumRepeats = n

	case "RelayList":
		cfg.RelayList = value

	case "RelayCacheTime":
		hours, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RelayCacheTime value: %s", value)
		}
		cfg.RelayCacheTime = time.Duration(hours) * time.Hour

	case "ResultsDirectory":
		cfg.ResultsDirectory = value

	case "InputFile":
		cfg.InputFile = value

	default:
		// Ignore unknown options for forward compatibility, matching
		// a standard torrc's tolerance for directives a given build
		// doesn't recognize.
	}

	return nil
}

// validatePath rejects paths that attempt directory traversal.
func validatePath(path string) error {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid path: directory traversal detected")
	}
	if !filepath.IsAbs(path) && filepath.IsAbs(cleanPath) {
		return fmt.Errorf("invalid path: attempts to escape working directory")
	}
	return nil
}

// SaveToFile writes cfg out as a tingrc file, useful for snapshotting
// the effective configuration (file plus CLI overrides) a run actually
// used.
func SaveToFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validatePath(path); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	file, err := os.Create(path) // #nosec G304 - path is validated by validatePath
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	fmt.Fprintf(writer, "# ting configuration file\n")
	fmt.Fprintf(writer, "# Generated automatically - edit with care\n\n")

	fmt.Fprintf(writer, "W %s\n", cfg.W)
	fmt.Fprintf(writer, "Z %s\n\n", cfg.Z)

	if cfg.SourceAddr != "" {
		fmt.Fprintf(writer, "SourceAddr %s\n", cfg.SourceAddr)
	}
	fmt.Fprintf(writer, "DestinationAddr %s\n", cfg.DestinationAddr)
	fmt.Fprintf(writer, "DestinationPort %d\n\n", cfg.DestinationPort)

	fmt.Fprintf(writer, "ControllerPort %d\n", cfg.ControllerPort)
	fmt.Fprintf(writer, "SocksPort %d\n", cfg.SocksPort)
	fmt.Fprintf(writer, "SocksTimeout %d\n", int(cfg.SocksTimeout/time.Second))
	fmt.Fprintf(writer, "MaxCircuitBuildAttempts %d\n\n", cfg.MaxCircuitBuildAttempts)

	fmt.Fprintf(writer, "NumSamples %d\n", cfg.NumSamples)
	fmt.Fprintf(writer, "NumRepeats %d\n\n", cfg.NumRepeats)

	fmt.Fprintf(writer, "RelayList %s\n", cfg.RelayList)
	fmt.Fprintf(writer, "RelayCacheTime %d\n", int(cfg.RelayCacheTime/time.Hour))
	fmt.Fprintf(writer, "ResultsDirectory %s\n", cfg.ResultsDirectory)
	if cfg.InputFile != "" {
		fmt.Fprintf(writer, "InputFile %s\n", cfg.InputFile)
	}

	return writer.Flush()
}
