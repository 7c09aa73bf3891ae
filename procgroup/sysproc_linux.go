//go:build linux

package procgroup

import "syscall"

// configureSysProcAttr makes the kernel kill the member itself when the
// supervisor dies. Its descendants are left to the guardian.
func configureSysProcAttr(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGKILL
}
