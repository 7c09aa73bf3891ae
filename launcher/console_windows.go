//go:build windows

package launcher

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureConsole gives the backend its own console window, or hides it
// entirely when output is captured instead.
func configureConsole(cmd *exec.Cmd, newConsole bool) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	if newConsole {
		cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_CONSOLE
		return
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NO_WINDOW
}
