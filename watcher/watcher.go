// Package watcher polls a loopback port until the backend accepts
// connections.
//
// The backend is an arbitrary external process with no way to signal that
// it is ready, so readiness is detected by dialing the port on a fixed
// interval. Every attempt uses a fresh connection.
//
//	Initializing ──ok──▶ Polling ──connect ok──▶ Ready (onReady)
//	     │                 │  ▲
//	   error          dial │  │ interval
//	     ▼            fail ▼  │
//	   Failed             (wait)
//
// Cancellation moves Polling to Cancelled without a callback.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/mrexodia/app-launcher/task"
)

// DefaultInterval is the delay between failed connection attempts.
const DefaultInterval = 500 * time.Millisecond

// ErrStartup is returned by Stop when the watcher could not start polling.
var ErrStartup = errors.New("readiness watcher cannot start")

// State is the watcher state.
type State int32

const (
	StateInitializing State = iota
	StatePolling
	StateReady
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePolling:
		return "polling"
	case StateReady:
		return "ready"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Dialer opens readiness connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config tunes the watcher. The zero value polls tcp://127.0.0.1 every
// 500ms with a real dialer and clock.
type Config struct {
	Interval time.Duration
	Host     string
	Network  string
	Dialer   Dialer
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Watcher is a running readiness watcher task.
type Watcher struct {
	cfg      Config
	addr     string
	onReady  func()
	log      *slog.Logger
	task     *task.Task
	state    atomic.Int32
	attempts atomic.Int64

	mu  sync.Mutex
	err error
}

// Start begins polling port in a new task. onReady is called at most once,
// from the watcher goroutine, when a connection succeeds.
func Start(parent context.Context, cfg Config, port uint16, onReady func()) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	w := &Watcher{
		cfg:     cfg,
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(int(port))),
		onReady: task.Once(onReady),
		log:     log.With("component", "watcher", "port", port),
	}
	w.task = task.Start(parent, "watcher", w.run)
	return w
}

func (w *Watcher) run(ctx context.Context) {
	if _, err := net.ResolveTCPAddr(w.cfg.Network, w.addr); err != nil {
		w.mu.Lock()
		w.err = fmt.Errorf("%w: %w", ErrStartup, err)
		w.mu.Unlock()
		w.setState(StateFailed)
		w.log.Error("readiness watcher cannot start", "address", w.addr, "error", err)
		return
	}
	w.setState(StatePolling)

	for {
		if ctx.Err() != nil {
			w.cancelled()
			return
		}

		n := w.attempts.Add(1)
		conn, err := w.cfg.Dialer.DialContext(ctx, w.cfg.Network, w.addr)
		if err == nil {
			conn.Close()
			if ctx.Err() != nil {
				w.cancelled()
				return
			}
			w.setState(StateReady)
			w.log.Info("backend is accepting connections", "attempts", n)
			w.onReady()
			return
		}
		w.log.Debug("backend not ready", "attempt", n, "error", err)

		if ctx.Err() != nil {
			w.cancelled()
			return
		}

		select {
		case <-ctx.Done():
			w.cancelled()
			return
		case <-w.cfg.Clock.After(w.cfg.Interval):
		}
	}
}

func (w *Watcher) cancelled() {
	w.setState(StateCancelled)
	w.log.Debug("readiness watcher cancelled", "attempts", w.attempts.Load())
}

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
}

// State returns the current state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Attempts returns the number of connection attempts made so far.
func (w *Watcher) Attempts() int64 {
	return w.attempts.Load()
}

// Address returns the polled host:port.
func (w *Watcher) Address() string {
	return w.addr
}

// Cancel requests cancellation without waiting.
func (w *Watcher) Cancel() {
	w.task.Cancel()
}

// Err returns the start-up error of a failed watcher.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stop requests cancellation and waits for the task to return. After Stop
// returns, onReady can no longer be invoked. The returned error is Err.
func (w *Watcher) Stop() error {
	w.task.Stop()
	return w.Err()
}

// Done is closed when the task has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.task.Done()
}
