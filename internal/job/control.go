package job

import (
	"errors"
	"os"
	"strings"
)

var (
	// ErrNoTerminal is returned by terminal operations of a Control which has no
	// controlling terminal to arbitrate.
	ErrNoTerminal = errors.New("no controlling terminal")
	// ErrNoChild is returned by Control.Wait when no child matches the scope.
	ErrNoChild = errors.New("no child processes")
)

// Command describes an external program to launch. It is produced by the
// evaluator and consumed by the registry.
type Command struct {
	Path string   // resolved program path
	Args []string // arguments, without argv[0]
	Dir  string   // working directory, "" inherits the shell's
	Env  []string // KEY=value pairs, nil inherits the shell's

	// Stdin, Stdout and Stderr default to the shell's own descriptors.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Label is the text shown by job listings, Path and Args when empty.
	Label string
}

func (c Command) label() string {
	if c.Label != "" {
		return c.Label
	}
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

func (c Command) files() []*os.File {
	in, out, errf := c.Stdin, c.Stdout, c.Stderr
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errf == nil {
		errf = os.Stderr
	}
	return []*os.File{in, out, errf}
}

// StartOptions tell the Control how to prepare the child.
type StartOptions struct {
	// Pgid is the process group to join, 0 makes the child the leader of a new group.
	Pgid int
	// Foreground asks the child to take the terminal for its group.
	Foreground bool
	// ShellGroup leaves the child in the shell's own process group, Pgid and
	// Foreground are ignored.
	ShellGroup bool
}

// WaitMode selects between the blocking and the draining reap.
type WaitMode int

const (
	// Block waits until at least one child of the scope changes state.
	Block WaitMode = iota
	// Poll returns immediately when nothing is pending.
	Poll
)

// AnyChild is the wait scope covering every child of the shell.
const AnyChild = 0

// Event is a single process status change reported by the OS.
type Event struct {
	Pid    int
	Status Status
}

// Control is the platform capability the registry arbitrates with. The unix
// implementation provides process groups, terminal ownership and job-control
// signals; other platforms get a stub without a controlling terminal.
//
// Implementations are not required to be safe for concurrent use, the registry
// serializes all calls except Wait in Block mode.
type Control interface {
	// Terminal reports whether stdin is a terminal the shell may hand out.
	Terminal() bool
	// Start launches cmd prepared according to opts and returns its pid.
	Start(cmd Command, opts StartOptions) (int, error)
	// SetForeground transfers terminal ownership to the process group pgid.
	SetForeground(pgid int) error
	// Reclaim returns terminal ownership to the shell's own process group.
	Reclaim() error
	// Continue delivers the continue signal to every process of group pgid.
	Continue(pgid int) error
	// ContinueProcess delivers the continue signal to the single process pid.
	ContinueProcess(pid int) error
	// Wait reports the next status change of a child in process group scope
	// (AnyChild for all). In Poll mode ok is false when nothing is pending.
	// ErrNoChild means the scope has no children left.
	Wait(scope int, mode WaitMode) (ev Event, ok bool, err error)
}

// Detached wraps c for a shell which must not touch the terminal. Terminal
// ownership is never transferred, so the registry keeps foreground processes in
// the shell's group; background jobs still get their own.
func Detached(c Control) Control {
	return detached{Control: c}
}

type detached struct {
	Control
}

func (detached) Terminal() bool          { return false }
func (detached) SetForeground(int) error { return ErrNoTerminal }
func (detached) Reclaim() error          { return ErrNoTerminal }
