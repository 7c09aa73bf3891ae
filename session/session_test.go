package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrexodia/app-launcher/config"
	"github.com/mrexodia/app-launcher/freeport"
	"github.com/mrexodia/app-launcher/launcher"
	"github.com/mrexodia/app-launcher/procgroup"
	"github.com/mrexodia/app-launcher/webhook"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeWindow struct {
	mu       sync.Mutex
	revealed []string
	closed   int
	done     chan struct{}
	err      error
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{done: make(chan struct{})}
}

func (w *fakeWindow) Reveal(url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.revealed = append(w.revealed, url)
	return w.err
}

func (w *fakeWindow) Done() <-chan struct{} { return w.done }

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *fakeWindow) reveals() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.revealed...)
}

func (w *fakeWindow) closes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type fakeConsole struct {
	hidden atomic.Int32
}

func (c *fakeConsole) Hide() { c.hidden.Add(1) }

type fakeGroup struct {
	closed atomic.Int32
}

func (g *fakeGroup) Start(cmd *exec.Cmd) error { return errors.New("not used") }
func (g *fakeGroup) Close() error {
	g.closed.Add(1)
	return nil
}

type fakeProcess struct {
	exit chan int
}

func (p *fakeProcess) Pid() int { return 4242 }
func (p *fakeProcess) Wait() (int, error) {
	return <-p.exit, nil
}

type fakeSpawner struct {
	proc  *fakeProcess
	err   error
	calls atomic.Int32
}

func (s *fakeSpawner) Spawn(cmd *exec.Cmd) (launcher.Process, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.proc, nil
}

type fakeDialer struct {
	open atomic.Bool
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !d.open.Load() {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

type harness struct {
	cfg     config.Config
	window  *fakeWindow
	console *fakeConsole
	group   *fakeGroup
	spawner *fakeSpawner
	dialer  *fakeDialer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Workdir = t.TempDir()
	cfg.PollInterval = "10ms"
	cfg.NewConsole = new(bool)

	// Let a spawned fake process exit when the test ends.
	proc := &fakeProcess{exit: make(chan int, 1)}
	t.Cleanup(func() {
		select {
		case proc.exit <- 0:
		default:
		}
	})

	return &harness{
		cfg:     cfg,
		window:  newFakeWindow(),
		console: &fakeConsole{},
		group:   &fakeGroup{},
		spawner: &fakeSpawner{proc: proc},
		dialer:  &fakeDialer{},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Window:       h.window,
		Console:      h.console,
		AllocatePort: func() (uint16, error) { return 42017, nil },
		NewGroup: func(name string, _ *slog.Logger) (ProcessGroup, error) {
			return h.group, nil
		},
		Spawner: h.spawner,
		Dialer:  h.dialer,
	}
}

func runAsync(ctx context.Context, s *Session) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return errc
}

func waitResult(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestRevealOnlyAfterReady(t *testing.T) {
	h := newHarness(t)
	s := New(h.cfg, config.Metadata{Name: "demo", Version: "1.0"}, h.deps())
	errc := runAsync(context.Background(), s)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.window.reveals(), "no window before the backend is ready")
	assert.Zero(t, h.console.hidden.Load())

	h.dialer.open.Store(true)
	require.Eventually(t, func() bool { return len(h.window.reveals()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "http://127.0.0.1:42017", h.window.reveals()[0])
	assert.Equal(t, s.URL(), h.window.reveals()[0])
	assert.Equal(t, uint16(42017), s.Port())
	assert.Equal(t, int32(1), h.console.hidden.Load())

	// User closes the window.
	close(h.window.done)
	require.NoError(t, waitResult(t, errc))

	assert.Equal(t, int32(1), h.group.closed.Load())
	assert.Equal(t, 1, h.window.closes())
	assert.Len(t, h.window.reveals(), 1)
}

func TestUnexpectedExitEndsSession(t *testing.T) {
	var mu sync.Mutex
	var payload webhook.ExitPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	h := newHarness(t)
	deps := h.deps()
	deps.Notifier = webhook.NewNotifier(srv.URL)
	s := New(h.cfg, config.Metadata{Name: "demo", Version: "1.0"}, deps)
	errc := runAsync(context.Background(), s)

	require.Eventually(t, func() bool { return h.spawner.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.spawner.proc.exit <- 3

	err := waitResult(t, errc)
	require.ErrorIs(t, err, ErrBackendExited)
	assert.Empty(t, h.window.reveals())
	assert.Equal(t, int32(1), h.group.closed.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "demo", payload.App)
	assert.Equal(t, 3, payload.ExitCode)
	assert.Equal(t, uint16(42017), payload.Port)
}

func TestParentCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(h.cfg, config.Metadata{}, h.deps())
	errc := runAsync(ctx, s)

	require.Eventually(t, func() bool { return h.spawner.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, waitResult(t, errc))
	assert.Equal(t, int32(1), h.group.closed.Load())
	assert.Empty(t, h.window.reveals())
}

func TestPortAllocationIsFatal(t *testing.T) {
	h := newHarness(t)
	deps := h.deps()
	deps.AllocatePort = func() (uint16, error) { return 0, freeport.ErrNoFreePort }
	var groups atomic.Int32
	deps.NewGroup = func(string, *slog.Logger) (ProcessGroup, error) {
		groups.Add(1)
		return h.group, nil
	}

	err := New(h.cfg, config.Metadata{}, deps).Run(context.Background())

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, freeport.ErrNoFreePort)
	assert.Zero(t, groups.Load())
	assert.Zero(t, h.spawner.calls.Load())
}

func TestGroupCreationIsFatal(t *testing.T) {
	h := newHarness(t)
	deps := h.deps()
	deps.NewGroup = func(string, *slog.Logger) (ProcessGroup, error) {
		return nil, procgroup.ErrCreate
	}

	err := New(h.cfg, config.Metadata{}, deps).Run(context.Background())

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, procgroup.ErrCreate)
	assert.Zero(t, h.spawner.calls.Load(), "nothing is spawned without a group")
}

func TestSecondInstanceRejected(t *testing.T) {
	h := newHarness(t)
	held := flock.New(h.cfg.LockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Close()

	err = New(h.cfg, config.Metadata{}, h.deps()).Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Zero(t, h.spawner.calls.Load())
}

func TestLockReleasedAfterRun(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, New(h.cfg, config.Metadata{}, h.deps()).Run(ctx))

	fl := flock.New(filepath.Join(h.cfg.Workdir, ".app-launcher.lock"))
	locked, err := fl.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	require.NoError(t, fl.Close())
}

func TestEscalatedSpawnFailure(t *testing.T) {
	h := newHarness(t)
	h.cfg.FailurePolicy = "escalate"
	h.spawner.err = procgroup.ErrAttach

	err := New(h.cfg, config.Metadata{}, h.deps()).Run(context.Background())
	assert.ErrorIs(t, err, procgroup.ErrAttach)
	assert.Equal(t, int32(1), h.group.closed.Load())
}

func TestRevealFailure(t *testing.T) {
	h := newHarness(t)
	h.window.err = errors.New("no display")
	h.dialer.open.Store(true)

	err := New(h.cfg, config.Metadata{}, h.deps()).Run(context.Background())
	assert.ErrorContains(t, err, "no display")
}

func TestIgnoredSpawnFailureLoggedAtShutdown(t *testing.T) {
	h := newHarness(t)
	h.spawner.err = errors.New("interpreter not found")
	var logs bytes.Buffer
	deps := h.deps()
	deps.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, New(h.cfg, config.Metadata{}, deps))

	require.Eventually(t, func() bool { return h.spawner.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, waitResult(t, errc), "ignored failures do not end the session")
	assert.Contains(t, logs.String(), "task ended with an error")
	assert.Contains(t, logs.String(), "interpreter not found")
}
