//go:build !windows

package ui

// NewConsole returns a no-op console. The backend shares the launcher's
// terminal outside Windows.
func NewConsole(title string) Console {
	return NopConsole{}
}
