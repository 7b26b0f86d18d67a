package udp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderDefaultDest(t *testing.T) {
	s, err := NewSender("")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DefaultDest, s.Dest())
}

func TestSenderInvalidDest(t *testing.T) {
	_, err := NewSender("not a destination")
	assert.Error(t, err)
}

func TestSenderDelivers(t *testing.T) {
	// Loopback listener stands in for a TAK endpoint.
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	s, err := NewSender(listener.LocalAddr().String())
	require.NoError(t, err)
	defer s.Close()

	payload := []byte(`<?xml version="1.0"?><event/>`)
	require.NoError(t, s.Send(payload))

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestSenderEmptyPayloadIsNoop(t *testing.T) {
	s, err := NewSender("")
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Send(nil))
}

func TestSenderCloseTwice(t *testing.T) {
	s, err := NewSender("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Error(t, s.Close(), "second close reports the closed connection")
}
