//go:build windows

package ui

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW = user32.NewProc("FindWindowW")
	procShowWindow  = user32.NewProc("ShowWindow")
)

const swHide = 0

// WindowConsole finds a console window by its exact title.
type WindowConsole struct {
	title string
}

// NewConsole returns the console whose window title is title.
func NewConsole(title string) Console {
	if title == "" {
		return NopConsole{}
	}
	return &WindowConsole{title: title}
}

// Hide hides the console window if it exists.
func (c *WindowConsole) Hide() {
	title, err := windows.UTF16PtrFromString(c.title)
	if err != nil {
		return
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(title)))
	if hwnd == 0 {
		return
	}
	procShowWindow.Call(hwnd, swHide)
}
