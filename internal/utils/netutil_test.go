package utils

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPort(t *testing.T) {
	p, ok := HostPort("8188:8188")
	assert.True(t, ok)
	assert.Equal(t, 8188, p)

	p, ok = HostPort("11434:11434/tcp")
	assert.True(t, ok)
	assert.Equal(t, 11434, p)

	_, ok = HostPort("5353:53/udp")
	assert.False(t, ok)
	_, ok = HostPort("80")
	assert.False(t, ok)
	_, ok = HostPort("x:80")
	assert.False(t, ok)
}

func TestBusyHostPorts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	taken := ln.Addr().(*net.TCPAddr).Port

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	freePort := free.Addr().(*net.TCPAddr).Port
	free.Close()
	defer ln.Close()

	busy := BusyHostPorts([]string{
		strconv.Itoa(taken) + ":80",
		strconv.Itoa(freePort) + ":81",
		strconv.Itoa(taken) + ":53/udp",
	})
	assert.Equal(t, []int{taken}, busy)
}
