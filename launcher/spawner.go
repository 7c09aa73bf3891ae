package launcher

import (
	"errors"
	"os/exec"
)

// Group is the part of a process group the launcher needs.
type Group interface {
	Start(cmd *exec.Cmd) error
}

// Process is a started backend.
type Process interface {
	Pid() int
	// Wait blocks until the process exits and releases its resources.
	Wait() (exitCode int, err error)
}

// Spawner starts the backend command.
type Spawner interface {
	Spawn(cmd *exec.Cmd) (Process, error)
}

// InGroup returns a Spawner that starts commands through g, so that the
// process is a member of g before it runs.
func InGroup(g Group) Spawner {
	return groupSpawner{group: g}
}

type groupSpawner struct {
	group Group
}

func (s groupSpawner) Spawn(cmd *exec.Cmd) (Process, error) {
	if s.group == nil {
		return nil, errors.New("no process group")
	}
	if err := s.group.Start(cmd); err != nil {
		return nil, err
	}
	return execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	// ProcessState is set even when Wait fails on WaitDelay because a
	// descendant still holds the output pipes.
	if p.cmd.ProcessState == nil {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), err
}
