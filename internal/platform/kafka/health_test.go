package kafka

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckerReachableBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// First broker is closed; the second answers.
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := closed.Addr().String()
	require.NoError(t, closed.Close())

	h := NewHealthChecker(closedAddr + ", " + ln.Addr().String())
	assert.NoError(t, h.Check(context.Background()))
	assert.Equal(t, "kafka", h.Name())
}

func TestHealthCheckerNoBrokers(t *testing.T) {
	err := NewHealthChecker(" , ").Check(context.Background())
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestHealthCheckerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = NewHealthChecker(addr).Check(context.Background())
	assert.ErrorContains(t, err, "no kafka brokers reachable")
}
