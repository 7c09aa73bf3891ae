//go:build windows

package ui

import (
	"golang.org/x/sys/windows"
)

// ShowError shows a blocking error dialog.
func ShowError(title, msg string) {
	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return
	}
	m, err := windows.UTF16PtrFromString(msg)
	if err != nil {
		return
	}
	windows.MessageBox(0, m, t, windows.MB_OK|windows.MB_ICONERROR)
}
