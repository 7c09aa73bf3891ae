// Package freeport picks an unused loopback TCP port for the backend.
//
// The port is found by binding a listener and releasing it straight away:
// the real server is a separate process started after Allocate returns, so
// the port cannot be held open. The window between release and the backend
// binding is a known race; the high port range keeps collisions unlikely.
package freeport

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
)

const (
	DefaultMin      = 42000
	DefaultMax      = 65535
	DefaultAttempts = 36
)

var (
	// ErrNoFreePort is returned when every attempt failed to bind.
	ErrNoFreePort = errors.New("no free port found")

	// ErrInvalidRange is returned for an empty or zero-based port range.
	ErrInvalidRange = errors.New("invalid port range")
)

// BindFunc tries to bind port on loopback and releases it again.
type BindFunc func(port uint16) error

// Allocator finds free ports. The zero value uses the package defaults.
type Allocator struct {
	Min      uint16
	Max      uint16
	Attempts int
	Bind     BindFunc
	Logger   *slog.Logger
}

// Allocate returns a free port using the default allocator.
func Allocate() (uint16, error) {
	var a Allocator
	return a.Allocate()
}

// Allocate draws random candidates in [Min, Max] and returns the first one
// that can be bound. It fails with ErrNoFreePort once Attempts candidates
// have been rejected. There is no retry beyond that.
func (a *Allocator) Allocate() (uint16, error) {
	lo, hi := a.Min, a.Max
	if lo == 0 && hi == 0 {
		lo, hi = DefaultMin, DefaultMax
	}
	if lo == 0 || lo > hi {
		return 0, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lo, hi)
	}

	attempts := a.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	bind := a.Bind
	if bind == nil {
		bind = BindLoopback
	}

	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate := lo + uint16(rand.Intn(int(hi)-int(lo)+1))
		if err := bind(candidate); err != nil {
			log.Debug("port candidate rejected", "port", candidate, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		log.Debug("port allocated", "port", candidate, "attempt", attempt)
		return candidate, nil
	}

	if lastErr != nil {
		return 0, fmt.Errorf("%w after %d attempts: %w", ErrNoFreePort, attempts, lastErr)
	}
	return 0, fmt.Errorf("%w after %d attempts", ErrNoFreePort, attempts)
}

// BindLoopback binds a TCP listener on 127.0.0.1:port and closes it.
func BindLoopback(port uint16) error {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		return err
	}
	return l.Close()
}
