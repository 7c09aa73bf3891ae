package ui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/zserge/lorca"
)

const (
	titlePollInterval = 100 * time.Millisecond
	titleAttempts     = 100
)

// LorcaWindow shows the backend in a Chrome app window. The window is not
// created until Reveal. Without Chrome it opens the default browser instead
// and Done never closes.
type LorcaWindow struct {
	title         string
	width, height int
	log           *slog.Logger

	newUI   func(url, dir string, width, height int, args ...string) (lorca.UI, error)
	openURL func(url string) error

	mu       sync.Mutex
	ui       lorca.UI
	revealed bool
	done     chan struct{}
}

// NewLorcaWindow returns a window of the given size. A non-empty title
// replaces the page title once the page has loaded, which Chrome shows as
// the window title.
func NewLorcaWindow(title string, width, height int, logger *slog.Logger) *LorcaWindow {
	if logger == nil {
		logger = slog.Default()
	}
	return &LorcaWindow{
		title:   title,
		width:   width,
		height:  height,
		log:     logger.With("component", "ui"),
		newUI:   lorca.New,
		openURL: openBrowser,
		done:    make(chan struct{}),
	}
}

func (w *LorcaWindow) Reveal(url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.revealed {
		return ErrAlreadyRevealed
	}
	w.revealed = true

	ui, err := w.newUI(url, "", w.width, w.height)
	if err != nil {
		w.log.Warn("failed to launch app window, opening in browser", "error", err)
		if err := w.openURL(url); err != nil {
			return fmt.Errorf("failed to open browser: %w", err)
		}
		return nil
	}
	w.ui = ui

	go func() {
		<-ui.Done()
		close(w.done)
	}()
	go w.applyTitle(ui)

	w.log.Info("window revealed", "url", url)
	return nil
}

// applyTitle waits for the page to finish loading and sets its title.
func (w *LorcaWindow) applyTitle(ui lorca.UI) {
	if w.title == "" {
		return
	}
	lit, err := json.Marshal(w.title)
	if err != nil {
		return
	}

	for i := 0; i < titleAttempts; i++ {
		v := ui.Eval("document.readyState")
		if v != nil && v.Err() == nil && v.String() == "complete" {
			if v := ui.Eval("document.title = " + string(lit)); v != nil && v.Err() != nil {
				w.log.Debug("failed to set window title", "error", v.Err())
			}
			return
		}
		select {
		case <-ui.Done():
			return
		case <-time.After(titlePollInterval):
		}
	}
	w.log.Debug("page did not finish loading, window title left unchanged")
}

func (w *LorcaWindow) Done() <-chan struct{} {
	return w.done
}

func (w *LorcaWindow) Close() error {
	w.mu.Lock()
	ui := w.ui
	w.mu.Unlock()
	if ui == nil {
		return nil
	}
	return ui.Close()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
