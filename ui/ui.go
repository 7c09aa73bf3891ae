// Package ui is the boundary to the user-facing window. Nothing here renders
// content: the window is handed a URL once the backend is ready.
package ui

import "errors"

// ErrAlreadyRevealed is returned by a second Reveal.
var ErrAlreadyRevealed = errors.New("window already revealed")

// Window is shown once, after the backend accepts connections.
type Window interface {
	// Reveal creates the window and loads url.
	Reveal(url string) error
	// Done is closed when the user closes the window.
	Done() <-chan struct{}
	Close() error
}

// Console controls the backend's console window.
type Console interface {
	Hide()
}

// NopConsole does nothing.
type NopConsole struct{}

func (NopConsole) Hide() {}
