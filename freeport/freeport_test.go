package freeport

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateInRangeAndReleased(t *testing.T) {
	for i := 0; i < 5; i++ {
		port, err := Allocate()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int(port), DefaultMin)
		assert.LessOrEqual(t, int(port), DefaultMax)

		// The allocator must not keep the port: binding it again succeeds.
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
		require.NoError(t, err, "port %d should be free after allocation", port)
		require.NoError(t, l.Close())
	}
}

func TestAllocateExhausted(t *testing.T) {
	calls := 0
	a := Allocator{
		Bind: func(port uint16) error {
			calls++
			return errors.New("address in use")
		},
	}

	port, err := a.Allocate()
	require.ErrorIs(t, err, ErrNoFreePort)
	assert.Zero(t, port)
	assert.Equal(t, DefaultAttempts, calls)
}

func TestAllocateSucceedsOnLastAttempt(t *testing.T) {
	calls := 0
	a := Allocator{
		Bind: func(port uint16) error {
			calls++
			if calls < DefaultAttempts {
				return errors.New("address in use")
			}
			return nil
		},
	}

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.NotZero(t, port)
	assert.Equal(t, DefaultAttempts, calls)
}

func TestAllocateCustomRange(t *testing.T) {
	var seen []uint16
	a := Allocator{
		Min:      50000,
		Max:      50002,
		Attempts: 50,
		Bind: func(port uint16) error {
			seen = append(seen, port)
			return errors.New("busy")
		},
	}

	_, err := a.Allocate()
	require.ErrorIs(t, err, ErrNoFreePort)
	require.Len(t, seen, 50)
	for _, p := range seen {
		assert.True(t, p >= 50000 && p <= 50002, "candidate %d outside range", p)
	}
}

func TestAllocateSinglePortRange(t *testing.T) {
	a := Allocator{
		Min: 60000,
		Max: 60000,
		Bind: func(port uint16) error {
			return nil
		},
	}

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(60000), port)
}

func TestAllocateInvalidRange(t *testing.T) {
	a := Allocator{Min: 60000, Max: 50000}
	_, err := a.Allocate()
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestBindLoopbackBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	assert.Error(t, BindLoopback(uint16(port)))
}
