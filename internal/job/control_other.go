//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package job

import (
	"errors"
	"os"
	"slices"
	"sync"
)

var shielded = []os.Signal{os.Interrupt}

// portableControl runs processes without groups or terminal control. Every
// process is waited for by its own goroutine and only completion is reported.
type portableControl struct {
	mx      sync.Mutex
	wake    chan struct{}
	group   map[int]int // live pid to its logical group
	pending []Event
}

// NewControl returns the Control of the current platform. Job control is not
// available here: jobs never stop and cannot be continued.
func NewControl() Control {
	return &portableControl{
		wake:  make(chan struct{}, 1),
		group: make(map[int]int),
	}
}

func (c *portableControl) Terminal() bool { return false }

func (c *portableControl) Start(cmd Command, opts StartOptions) (int, error) {
	argv := append([]string{cmd.Path}, cmd.Args...)
	proc, err := os.StartProcess(cmd.Path, argv, &os.ProcAttr{
		Dir:   cmd.Dir,
		Env:   cmd.Env,
		Files: cmd.files(),
	})
	if err != nil {
		return 0, err
	}

	pgid := opts.Pgid
	switch {
	case opts.ShellGroup:
		pgid = 0
	case pgid == 0:
		pgid = proc.Pid
	}
	c.mx.Lock()
	c.group[proc.Pid] = pgid
	c.mx.Unlock()

	go func() {
		_, _ = proc.Wait()
		c.mx.Lock()
		c.pending = append(c.pending, Event{Pid: proc.Pid, Status: StatusCompleted})
		c.mx.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}()
	return proc.Pid, nil
}

func (c *portableControl) SetForeground(int) error { return ErrNoTerminal }
func (c *portableControl) Reclaim() error          { return ErrNoTerminal }
func (c *portableControl) Continue(int) error      { return errors.ErrUnsupported }

func (c *portableControl) ContinueProcess(int) error { return errors.ErrUnsupported }

func (c *portableControl) Wait(scope int, mode WaitMode) (Event, bool, error) {
	for {
		c.mx.Lock()
		idx := slices.IndexFunc(c.pending, func(ev Event) bool {
			return scope == AnyChild || c.group[ev.Pid] == scope
		})
		if idx >= 0 {
			ev := c.pending[idx]
			c.pending = slices.Delete(c.pending, idx, idx+1)
			delete(c.group, ev.Pid)
			c.mx.Unlock()
			return ev, true, nil
		}
		children := false
		for _, g := range c.group {
			if scope == AnyChild || g == scope {
				children = true
				break
			}
		}
		c.mx.Unlock()

		switch {
		case !children:
			return Event{}, false, ErrNoChild
		case mode == Poll:
			return Event{}, false, nil
		}
		<-c.wake
	}
}
