//go:build !linux && !windows

package procgroup

import "syscall"

// configureSysProcAttr is a no-op: Pdeathsig is Linux-only.
func configureSysProcAttr(_ *syscall.SysProcAttr) {}
