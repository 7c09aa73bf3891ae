// Package session wires the launcher, the readiness watcher and the window
// together for one run of the application.
//
// The order is fixed: lock, port, process group, then the two tasks. The
// window is only revealed once the watcher reports the backend ready. On
// shutdown both tasks are stopped before the process group is closed, so
// the kill that follows is never reported as an unexpected exit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/mrexodia/app-launcher/config"
	"github.com/mrexodia/app-launcher/freeport"
	"github.com/mrexodia/app-launcher/launcher"
	"github.com/mrexodia/app-launcher/procgroup"
	"github.com/mrexodia/app-launcher/ui"
	"github.com/mrexodia/app-launcher/watcher"
	"github.com/mrexodia/app-launcher/webhook"
)

// notifyTimeout bounds the failure webhook during shutdown.
const notifyTimeout = 10 * time.Second

// ProcessGroup is the kill-on-close group owning the backend.
type ProcessGroup interface {
	launcher.Group
	Close() error
}

// Deps are the collaborators of a session. Nil fields get real
// implementations built from the configuration.
type Deps struct {
	Window   ui.Window
	Console  ui.Console
	Notifier *webhook.Notifier
	Logger   *slog.Logger

	AllocatePort func() (uint16, error)
	NewGroup     func(name string, logger *slog.Logger) (ProcessGroup, error)

	// Spawner, Dialer and Clock are passed through to the launcher and
	// watcher.
	Spawner launcher.Spawner
	Dialer  watcher.Dialer
	Clock   clock.Clock
}

// Session is one run of the application.
type Session struct {
	id   string
	cfg  config.Config
	meta config.Metadata
	deps Deps
	log  *slog.Logger

	mu   sync.Mutex
	port uint16
}

// New prepares a session. Nothing is started until Run.
func New(cfg config.Config, meta config.Metadata, deps Deps) *Session {
	id := uuid.NewString()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", id)

	if deps.Window == nil {
		deps.Window = ui.NewLorcaWindow(meta.Title(), cfg.Window.Width, cfg.Window.Height, log)
	}
	if deps.Console == nil {
		deps.Console = ui.NewConsole(meta.Title())
	}
	if deps.Notifier == nil {
		deps.Notifier = webhook.NewNotifier(cfg.FailureWebhookURL)
	}
	if deps.AllocatePort == nil {
		alloc := &freeport.Allocator{
			Min:      uint16(cfg.PortMin),
			Max:      uint16(cfg.PortMax),
			Attempts: cfg.PortAttempts,
			Logger:   log,
		}
		deps.AllocatePort = alloc.Allocate
	}
	if deps.NewGroup == nil {
		deps.NewGroup = newProcessGroup
	}

	return &Session{
		id:   id,
		cfg:  cfg,
		meta: meta,
		deps: deps,
		log:  log,
	}
}

func newProcessGroup(name string, logger *slog.Logger) (ProcessGroup, error) {
	g, err := procgroup.New(name, logger)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ID returns the unique session id.
func (s *Session) ID() string {
	return s.id
}

// Port returns the backend port, or 0 before it was allocated.
func (s *Session) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// URL returns the address the window loads.
func (s *Session) URL() string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(int(s.Port())))
}

// Run starts the backend and blocks until the window is closed, ctx is
// cancelled or the backend exits. Failures before the backend was started
// are returned as *FatalError.
func (s *Session) Run(ctx context.Context) error {
	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	port, err := s.deps.AllocatePort()
	if err != nil {
		return &FatalError{Op: "allocate port", Err: err}
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	s.log = s.log.With("port", port)

	group, err := s.deps.NewGroup("app-launcher-"+s.id, s.log)
	if err != nil {
		return &FatalError{Op: "create process group", Err: err}
	}
	defer func() {
		if err := group.Close(); err != nil {
			s.log.Warn("failed to close process group", "error", err)
		}
	}()

	exited := make(chan struct{})
	failed := make(chan error, 1)
	revealErr := make(chan error, 1)

	lcfg := s.cfg.Launcher()
	lcfg.Spawner = s.deps.Spawner
	lcfg.Logger = s.log
	lcfg.OnFailure = func(err error) {
		failed <- err
	}
	l := launcher.Start(ctx, lcfg, port, group, func() { close(exited) })

	w := watcher.Start(ctx, watcher.Config{
		Interval: s.cfg.Interval(),
		Dialer:   s.deps.Dialer,
		Clock:    s.deps.Clock,
		Logger:   s.log,
	}, port, func() {
		s.deps.Console.Hide()
		if err := s.deps.Window.Reveal(s.URL()); err != nil {
			revealErr <- err
		}
	})

	s.log.Info("session started", "url", s.URL(), "title", s.meta.Title())

	var result error
	select {
	case <-ctx.Done():
		s.log.Info("session cancelled")
	case <-s.deps.Window.Done():
		s.log.Info("window closed")
	case <-exited:
		result = ErrBackendExited
	case err := <-failed:
		result = fmt.Errorf("start backend: %w", err)
	case err := <-revealErr:
		result = fmt.Errorf("reveal window: %w", err)
	}

	// Both tasks are joined before the group is closed.
	var g errgroup.Group
	g.Go(w.Stop)
	g.Go(l.Stop)
	if err := g.Wait(); err != nil {
		s.log.Warn("task ended with an error", "error", err)
	}

	if err := s.deps.Window.Close(); err != nil {
		s.log.Debug("failed to close window", "error", err)
	}

	if errors.Is(result, ErrBackendExited) {
		s.reportExit(l)
	}
	return result
}

func (s *Session) acquireLock() (*flock.Flock, error) {
	path := s.cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &FatalError{Op: "acquire lock", Err: err}
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, &FatalError{Op: "acquire lock", Err: err}
	}
	if !locked {
		return nil, &FatalError{Op: "acquire lock", Err: fmt.Errorf("%w: %s", ErrAlreadyRunning, path)}
	}
	return fl, nil
}

func (s *Session) releaseLock(fl *flock.Flock) {
	if err := fl.Close(); err != nil {
		s.log.Warn("failed to release lock", "path", fl.Path(), "error", err)
	}
}

// reportExit logs the output tail and sends the failure webhook.
func (s *Session) reportExit(l *launcher.Launcher) {
	tail := string(l.Stderr())
	if tail == "" {
		tail = string(l.Stdout())
	}
	s.log.Error("backend exited unexpectedly", "exit_code", l.ExitCode(), "output_tail", tail)

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	err := s.deps.Notifier.NotifyExit(ctx, webhook.ExitPayload{
		App:        s.meta.Name,
		Version:    s.meta.Version,
		Port:       s.Port(),
		Timestamp:  time.Now(),
		ExitCode:   l.ExitCode(),
		OutputTail: tail,
	})
	if err != nil {
		s.log.Warn("failed to send failure webhook", "error", err)
	}
}
