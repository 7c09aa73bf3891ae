//go:build !windows

package procgroup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// guardianEnv marks a re-executed binary as the crash guardian of a group.
const guardianEnv = "APP_LAUNCHER_PROCGROUP_GUARDIAN"

// A re-executed binary acting as guardian never reaches main.
func init() {
	if os.Getenv(guardianEnv) != "1" {
		return
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGHUP)
	os.Exit(runGuardian(os.Stdin, sigs, killGroup))
}

// runGuardian reads one pgid per line from in. When in reaches EOF, which
// happens when the supervisor exits for any reason, or when a signal
// arrives, every pgid read so far is killed.
func runGuardian(in io.Reader, sigs <-chan os.Signal, kill func(pgid int) error) int {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	pgids := make(map[int]struct{})
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				killAll(pgids, kill)
				return 0
			}
			pgid, err := strconv.Atoi(strings.TrimSpace(line))
			if err == nil && pgid > 0 {
				pgids[pgid] = struct{}{}
			}
		case <-sigs:
			killAll(pgids, kill)
			return 0
		}
	}
}

func killAll(pgids map[int]struct{}, kill func(pgid int) error) {
	for pgid := range pgids {
		_ = kill(pgid)
	}
}

func killGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

// guardian is the supervisor's handle on the guardian process. The
// supervisor holds the write end of its stdin; the kernel closes it when
// the supervisor dies.
type guardian struct {
	cmd *exec.Cmd
	in  io.WriteCloser
}

func startGuardian() (*guardian, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), guardianEnv+"=1")
	// Own process group, so terminal signals aimed at the supervisor's
	// group do not reach it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &guardian{cmd: cmd, in: in}, nil
}

func (gd *guardian) watch(pgid int) error {
	_, err := fmt.Fprintf(gd.in, "%d\n", pgid)
	return err
}

// stop closes the guardian's stdin and reaps it.
func (gd *guardian) stop() error {
	_ = gd.in.Close()
	return gd.cmd.Wait()
}
