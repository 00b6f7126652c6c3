package env

import (
	"os"
	"path/filepath"
)

// Version is stamped at build time with -ldflags.
var Version string = "dev"

// (default: %USERPROFILE%/.service-nanny on Windows, $HOME/.service-nanny on Linux)
var NannyDir string = GetNannyDir()

/**
 * Get service-nanny home directory path
 * @returns {string} Returns the directory holding runtime files (socket, logs)
 */
func GetNannyDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".service-nanny")
}

// DefaultSocketPath is where the daemon listens for CLI requests.
func DefaultSocketPath() string {
	return filepath.Join(NannyDir, "run", "service-nanny.sock")
}
