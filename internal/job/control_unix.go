//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package job

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

var shielded = []os.Signal{
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTSTP,
	unix.SIGTTIN,
	unix.SIGTTOU,
	unix.SIGTERM,
}

// unixControl implements full job control: process groups, terminal ownership
// through TIOCSPGRP and wait4 based reaping.
type unixControl struct {
	tty      *os.File
	terminal bool
	shell    int // process group of the shell itself
}

// NewControl returns the Control of the current platform bound to the shell's
// stdin.
func NewControl() Control {
	return newUnixControl(os.Stdin)
}

func newUnixControl(tty *os.File) *unixControl {
	return &unixControl{
		tty:      tty,
		terminal: term.IsTerminal(int(tty.Fd())),
		shell:    unix.Getpgrp(),
	}
}

func (c *unixControl) Terminal() bool {
	return c.terminal
}

// Start launches cmd. The child half of the preparation happens in the Go
// runtime between fork and exec, using raw system calls only:
//   - setpgid(0, Pgid) joins the target group, 0 creates a group led by the child
//   - with Foreground, ioctl(tty, TIOCSPGRP) hands the terminal to that group
//   - every signal the shell catches through Shield is reset to SIG_DFL
//
// A failure of any of these steps makes the spawn fail. SIGTTOU is ignored by
// the shell while a foreground child is forked, so the child's terminal claim
// from a background group is not stopped; the child keeps it ignored. A job
// stopped and resumed by job switch therefore still runs with SIGTTOU ignored.
//
// With ShellGroup none of the group steps run and the child shares the
// shell's process group.
func (c *unixControl) Start(cmd Command, opts StartOptions) (int, error) {
	sys := &syscall.SysProcAttr{}
	if !opts.ShellGroup {
		sys.Setpgid = true
		sys.Pgid = opts.Pgid
		if opts.Foreground && c.terminal {
			sys.Foreground = true
			sys.Ctty = int(c.tty.Fd())
		}
	}

	attr := &os.ProcAttr{
		Dir:   cmd.Dir,
		Env:   cmd.Env,
		Files: cmd.files(),
		Sys:   sys,
	}
	argv := append([]string{cmd.Path}, cmd.Args...)

	var proc *os.Process
	start := func() error {
		var err error
		proc, err = os.StartProcess(cmd.Path, argv, attr)
		return err
	}
	var err error
	if sys.Foreground {
		err = ignoringTTOU(start)
	} else {
		err = start()
	}
	if err != nil {
		return 0, err
	}

	// the pid is reaped by Wait, never through os.Process
	pid := proc.Pid
	_ = proc.Release()
	if opts.ShellGroup {
		return pid, nil
	}

	pgid := opts.Pgid
	if pgid == 0 {
		pgid = pid
	}
	// parent half of the group assignment, it fails with EACCES once the child
	// has already exec'd, which is fine: the child did it
	_ = unix.Setpgid(pid, pgid)
	return pid, nil
}

func (c *unixControl) SetForeground(pgid int) error {
	if !c.terminal {
		return ErrNoTerminal
	}
	fd := int(c.tty.Fd())
	// tcsetpgrp from a background group raises SIGTTOU unless it is ignored
	err := ignoringTTOU(func() error {
		return unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid)
	})
	if err != nil {
		return fmt.Errorf("tcsetpgrp %d: %w", pgid, err)
	}
	return nil
}

func (c *unixControl) Reclaim() error {
	return c.SetForeground(c.shell)
}

func (c *unixControl) Continue(pgid int) error {
	if err := unix.Kill(-pgid, unix.SIGCONT); err != nil {
		return fmt.Errorf("killpg %d SIGCONT: %w", pgid, err)
	}
	return nil
}

func (c *unixControl) ContinueProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGCONT); err != nil {
		return fmt.Errorf("kill %d SIGCONT: %w", pid, err)
	}
	return nil
}

func (c *unixControl) Wait(scope int, mode WaitMode) (Event, bool, error) {
	options := unix.WUNTRACED | unix.WCONTINUED
	if mode == Poll {
		options |= unix.WNOHANG
	}
	pid := -1
	if scope != AnyChild {
		pid = -scope
	}

	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return Event{}, false, ErrNoChild
		case err != nil:
			return Event{}, false, fmt.Errorf("wait4: %w", err)
		case wpid == 0:
			return Event{}, false, nil
		}

		switch {
		case ws.Exited(), ws.Signaled():
			return Event{Pid: wpid, Status: StatusCompleted}, true, nil
		case ws.Stopped():
			// ptrace stops are reported as stops too
			return Event{Pid: wpid, Status: StatusStopped}, true, nil
		case ws.Continued():
			return Event{Pid: wpid, Status: StatusRunning}, true, nil
		}
	}
}

// ignoringTTOU runs fn with SIGTTOU ignored by the shell.
func ignoringTTOU(fn func() error) error {
	shieldMx.Lock()
	defer shieldMx.Unlock()
	signal.Ignore(unix.SIGTTOU)
	defer rearm(unix.SIGTTOU)
	return fn()
}
