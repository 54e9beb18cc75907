package job_test

import (
	"errors"
	"slices"
	"sync"

	"github.com/CZERTAINLY/Herder/internal/job"
)

var errWouldBlock = errors.New("fake control: blocking wait with nothing pending")

// fakeControl simulates process groups and the terminal. Status changes are
// queued by the test and handed out by Wait in order.
type fakeControl struct {
	mx       sync.Mutex
	terminal bool
	lastPid  int
	startErr error

	group   map[int]int
	live    map[int]bool
	pending []job.Event

	starts    []job.StartOptions
	tty       []int // SetForeground calls
	reclaims  int
	continued []int
	resumed   []int // ContinueProcess calls
}

func newFake(terminal bool) *fakeControl {
	return &fakeControl{
		terminal: terminal,
		lastPid:  100,
		group:    make(map[int]int),
		live:     make(map[int]bool),
	}
}

func (f *fakeControl) Terminal() bool { return f.terminal }

func (f *fakeControl) Start(_ job.Command, opts job.StartOptions) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.starts = append(f.starts, opts)
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.lastPid++
	pid := f.lastPid
	pgid := opts.Pgid
	switch {
	case opts.ShellGroup:
		pgid = 0
	case pgid == 0:
		pgid = pid
	}
	f.group[pid] = pgid
	f.live[pid] = true
	return pid, nil
}

func (f *fakeControl) SetForeground(pgid int) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if !f.terminal {
		return job.ErrNoTerminal
	}
	f.tty = append(f.tty, pgid)
	return nil
}

func (f *fakeControl) Reclaim() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if !f.terminal {
		return job.ErrNoTerminal
	}
	f.reclaims++
	return nil
}

// Continue queues a continued event for every live member, like WCONTINUED.
func (f *fakeControl) Continue(pgid int) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.continued = append(f.continued, pgid)
	for pid, g := range f.group {
		if g == pgid && f.live[pid] {
			f.pending = append(f.pending, job.Event{Pid: pid, Status: job.StatusRunning})
		}
	}
	return nil
}

func (f *fakeControl) ContinueProcess(pid int) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.resumed = append(f.resumed, pid)
	if f.live[pid] {
		f.pending = append(f.pending, job.Event{Pid: pid, Status: job.StatusRunning})
	}
	return nil
}

func (f *fakeControl) Wait(scope int, mode job.WaitMode) (job.Event, bool, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	idx := slices.IndexFunc(f.pending, func(ev job.Event) bool {
		return scope == job.AnyChild || f.group[ev.Pid] == scope
	})
	if idx >= 0 {
		ev := f.pending[idx]
		f.pending = slices.Delete(f.pending, idx, idx+1)
		if ev.Status == job.StatusCompleted {
			delete(f.live, ev.Pid)
		}
		return ev, true, nil
	}
	for pid := range f.live {
		if scope == job.AnyChild || f.group[pid] == scope {
			if mode == job.Poll {
				return job.Event{}, false, nil
			}
			return job.Event{}, false, errWouldBlock
		}
	}
	return job.Event{}, false, job.ErrNoChild
}

func (f *fakeControl) push(pid int, status job.Status) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.pending = append(f.pending, job.Event{Pid: pid, Status: status})
}

// vanish forgets pid without an event, as if somebody else reaped it.
func (f *fakeControl) vanish(pid int) {
	f.mx.Lock()
	defer f.mx.Unlock()
	delete(f.live, pid)
}
