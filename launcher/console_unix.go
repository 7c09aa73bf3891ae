//go:build !windows

package launcher

import "os/exec"

// configureConsole is a no-op: there is no console window to create.
func configureConsole(cmd *exec.Cmd, newConsole bool) {}
