package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "OTPCAP_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the otpcap home directory.
//
// Resolution order:
//  1. $OTPCAP_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetReportsDir returns <home>/reports, the default output directory.
func GetReportsDir() string {
	return filepath.Join(GetHome(), "reports")
}

// GetLogPath returns <home>/otpcap.log.
func GetLogPath() string {
	return filepath.Join(GetHome(), "otpcap.log")
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
