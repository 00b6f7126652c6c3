package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// CheckPortAvailable 检查本机TCP端口是否无人侦听
func CheckPortAvailable(port int) bool {
	timeout := 500 * time.Millisecond
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		// 连接失败，说明端口可用
		return true
	}
	conn.Close()
	// 连接成功，说明端口已被占用
	return false
}

// HostPort extracts the published TCP port of a "host:container[/proto]" pair.
func HostPort(pair string) (int, bool) {
	spec, proto, _ := strings.Cut(pair, "/")
	if proto != "" && proto != "tcp" {
		return 0, false
	}
	host, _, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, false
	}
	port, err := strconv.Atoi(host)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

/**
 * Find published TCP ports that something is already listening on
 * @param {[]string} pairs - host:container port pairs of a service
 * @returns {[]int} Busy host ports in input order
 * @description
 * - UDP/SCTP pairs are not probed
 * - Only meaningful while the service itself is down
 */
func BusyHostPorts(pairs []string) []int {
	var busy []int
	for _, p := range pairs {
		port, ok := HostPort(p)
		if ok && !CheckPortAvailable(port) {
			busy = append(busy, port)
		}
	}
	return busy
}
