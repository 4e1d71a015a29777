// Package autoconfig provides automatic configuration management for zero-configuration setup.
package autoconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultDataDir returns the platform-appropriate data directory for ting.
// On Unix: ~/.config/ting
// On Windows: %APPDATA%/ting
// On macOS: ~/Library/Application Support/ting
func GetDefaultDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		// Use %APPDATA% on Windows
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = os.Getenv("USERPROFILE")
			if baseDir == "" {
				return "", fmt.Errorf("cannot determine Windows user directory")
			}
			baseDir = filepath.Join(baseDir, "AppData", "Roaming")
		}
		return filepath.Join(baseDir, "ting"), nil

	case "darwin":
		// Use ~/Library/Application Support on macOS
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, "Library", "Application Support", "ting"), nil

	default:
		// Use XDG_CONFIG_HOME or ~/.config on Linux/Unix
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		return filepath.Join(configDir, "ting"), nil
	}
}

// EnsureDataDir creates the data directory if it doesn't exist and sets proper permissions.
// On Unix systems, sets permissions to 700 (owner read/write/execute only).
func EnsureDataDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		if runtime.GOOS != "windows" {
			mode := info.Mode().Perm()
			if mode != 0o700 {
				if err := os.Chmod(path, 0o700); err != nil {
					return fmt.Errorf("failed to set directory permissions: %w", err)
				}
			}
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check directory: %w", err)
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return nil
}

// EnsureSubDir creates a subdirectory within the data directory.
func EnsureSubDir(dataDir, subDir string) (string, error) {
	path := filepath.Join(dataDir, subDir)
	if err := EnsureDataDir(path); err != nil {
		return "", err
	}
	return path, nil
}

// FindAvailablePortInRange picks a free TCP port on 127.0.0.1 within [min, max).
// It starts at a random port in the range and scans upward from there,
// wrapping around, so concurrent callers are unlikely to probe the same
// port first. Used by the echo responder, whose
// bind range is fixed by convention (16000-17000).
func FindAvailablePortInRange(min, max int) (int, error) {
	if min <= 0 || max <= min {
		return 0, fmt.Errorf("invalid port range [%d, %d)", min, max)
	}
	span := max - min
	start := min
	if n, err := randIntn(span); err == nil {
		start = min + n
	}
	for i := 0; i < span; i++ {
		port := min + (start-min+i)%span
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range [%d, %d)", min, max)
}

// CleanupTempFiles removes temporary files from the data directory.
func CleanupTempFiles(dataDir string) error {
	patterns := []string{"*.tmp", "*.temp", "*.lock~"}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dataDir, pattern))
		if err != nil {
			return fmt.Errorf("failed to search for temp files: %w", err)
		}

		for _, match := range matches {
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				continue
			}
		}
	}

	return nil
}

// isPortAvailable checks if a port is available for binding.
func isPortAvailable(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	if err := listener.Close(); err != nil {
		return false
	}
	return true
}
