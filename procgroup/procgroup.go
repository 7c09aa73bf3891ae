// Package procgroup implements a kill-on-close process group.
//
// A Group owns every process started through it or added to it. Closing
// the group forcibly terminates all members and their descendants. On
// Windows the group is a job object with JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
// which the kernel enforces even if the supervisor crashes. On Unix each
// member leads its own process group which is killed as a whole. A guardian
// process, a re-exec of the current binary, holds a pipe from the
// supervisor and kills the same groups when the pipe closes, so a crashed
// supervisor cannot leave descendants running. On Linux members also get
// SIGKILL as parent-death signal, covering the window before the guardian
// learns about them.
package procgroup

import "errors"

var (
	// ErrCreate is returned when the OS group cannot be created.
	ErrCreate = errors.New("create process group")

	// ErrConfigure is returned when the kill-on-close limit cannot be set.
	// The partially created group has already been released.
	ErrConfigure = errors.New("configure process group")

	// ErrAttach is returned when a process could not be made a member.
	ErrAttach = errors.New("attach process to group")

	// ErrClosed is returned by Start and Add after Close.
	ErrClosed = errors.New("process group closed")
)
