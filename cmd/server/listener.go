package server

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"service-nanny/internal/config"
	"service-nanny/internal/logger"
)

type ListenAddr struct {
	Network string
	Address string
}

/**
 * Test if the system supports Unix socket network type
 * @returns {bool} Returns true if Unix socket is supported, false otherwise
 * @description
 * - Linux and Darwin always support it
 * - On Windows a temporary socket is created and removed to find out
 */
func IsUnixSocketSupported() bool {
	if runtime.GOOS != "windows" {
		return true
	}
	testSocketPath := filepath.Join(os.TempDir(), "service_nanny_probe.sock")
	os.Remove(testSocketPath)

	listener, err := net.Listen("unix", testSocketPath)
	if err != nil {
		return false
	}
	listener.Close()
	os.Remove(testSocketPath)
	return true
}

/**
 * Derive listen addresses from the server configuration
 * @param {config.ServerConfig} cfg - Server configuration
 * @returns {[]ListenAddr} TCP address first, then the Unix socket unless disabled with "-"
 */
func ListenAddrs(cfg config.ServerConfig) []ListenAddr {
	var addrs []ListenAddr
	if cfg.Address != "" {
		addrs = append(addrs, ListenAddr{Network: "tcp", Address: cfg.Address})
	}
	if cfg.Socket != "" && cfg.Socket != "-" && IsUnixSocketSupported() {
		addrs = append(addrs, ListenAddr{Network: "unix", Address: cfg.Socket})
	}
	return addrs
}

/**
 * Create TCP and Unix socket listeners
 * @param {[]ListenAddr} addrs - Listener addresses
 * @returns {[]net.Listener} Listeners that could be created
 * @returns {error} Last creation error, nil when every address is listening
 * @description
 * - A stale socket file is removed and its directory created before listening
 * - The socket file is restricted to the current user
 * - Failing addresses are logged and skipped
 */
func CreateListeners(addrs []ListenAddr) ([]net.Listener, error) {
	var listeners []net.Listener

	var lastErr error
	for _, addr := range addrs {
		if addr.Network == "unix" {
			if err := os.MkdirAll(filepath.Dir(addr.Address), 0755); err != nil {
				logger.Errorf("Failed to create socket directory: %v", err)
				lastErr = err
				continue
			}
			if err := os.Remove(addr.Address); err != nil && !os.IsNotExist(err) {
				logger.Errorf("Failed to remove existing socket file: %v", err)
				lastErr = err
				continue
			}
		}
		ln, err := net.Listen(addr.Network, addr.Address)
		if err != nil {
			logger.Errorf("Failed to create listener on %s://%s: %v", addr.Network, addr.Address, err)
			lastErr = err
			continue
		}
		if addr.Network == "unix" {
			_ = os.Chmod(addr.Address, 0600)
		}
		logger.Infof("Listening on %s://%s", addr.Network, addr.Address)
		listeners = append(listeners, ln)
	}
	if len(addrs) == 0 {
		lastErr = errors.New("no listen address configured")
	}
	return listeners, lastErr
}
