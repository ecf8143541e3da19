package rtsp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)

	c, err := NewClient("rtsp://127.0.0.1:8554/cam")
	require.NoError(t, err)
	assert.NotNil(t, c.Frames())
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := NewClient("rtsp://127.0.0.1:8554/cam")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, ok := <-c.Frames()
	assert.False(t, ok)

	assert.Error(t, c.Connect(), "connect after close")
}

func TestConnectFailureKeepsRetrying(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c, err := NewClient("rtsp://" + addr + "/cam")
	require.NoError(t, err)

	assert.Error(t, c.Connect())
	assert.False(t, c.isStopped())
	require.NoError(t, c.Close())
	assert.True(t, c.isStopped())
}
