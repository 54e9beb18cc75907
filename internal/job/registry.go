package job

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Process is the handle returned for a spawned external process.
type Process struct {
	Pid  int
	Pgid int
	Job  ID
}

// Observer is told about every background job status change found by a reap
// pass, including completion right before the job is discarded.
type Observer func(ctx context.Context, d Descriptor)

// Option configures a Registry.
type Option func(*Registry)

// WithControl replaces the platform Control, mostly useful in tests.
func WithControl(c Control) Option {
	return func(r *Registry) {
		r.ctl = c
	}
}

// WithObserver registers fn to be called on background job state changes.
// fn runs with the registry lock held and must not call back into it.
func WithObserver(fn Observer) Option {
	return func(r *Registry) {
		r.observer = fn
	}
}

// Registry owns the jobs of one shell session: at most one foreground job and
// an ordered pool of background jobs.
type Registry struct {
	mx         sync.Mutex
	ctl        Control
	observer   Observer
	lastID     ID
	foreground *Job
	background []*Job
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.ctl == nil {
		r.ctl = NewControl()
	}
	return r
}

func (r *Registry) nextID() ID {
	r.lastID++
	return r.lastID
}

// SpawnForeground starts cmd as part of the foreground job. When a foreground
// job exists the process joins its process group (pipeline extension),
// otherwise it leads a new job. With interactive set and stdin being a
// terminal, the job's group gets the terminal. Otherwise the process stays in
// the shell's own group, so it reads the terminal and receives its signals
// together with the shell.
func (r *Registry) SpawnForeground(ctx context.Context, cmd Command, interactive bool) (Process, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	interactive = interactive && r.ctl.Terminal()
	fg := r.foreground

	opts := StartOptions{Foreground: interactive, ShellGroup: !interactive}
	if fg != nil {
		opts = StartOptions{Pgid: fg.pgroup, Foreground: interactive, ShellGroup: fg.shared()}
	}

	pid, err := r.ctl.Start(cmd, opts)
	if err != nil {
		if interactive && fg == nil {
			r.reclaim(ctx)
		}
		return Process{}, fmt.Errorf("spawning %s: %w", cmd.Path, err)
	}

	if fg != nil {
		fg.add(pid)
		slog.DebugContext(ctx, "process joined foreground job", "job", fg.id, "pid", pid, "pgid", fg.pgroup)
		return Process{Pid: pid, Pgid: fg.pgroup, Job: fg.id}, nil
	}

	pgroup := pid
	if opts.ShellGroup {
		pgroup = 0
	}
	job := newJob(r.nextID(), cmd.label(), pid, pgroup)
	if interactive {
		// the child claims the terminal too; whichever side runs last wins and
		// both set the same group
		r.setForeground(ctx, job.pgroup)
	}
	r.foreground = job
	slog.DebugContext(ctx, "foreground job created", "job", job.id, "pid", pid, "label", job.label)
	return Process{Pid: pid, Pgid: job.pgroup, Job: job.id}, nil
}

// SpawnBackground starts cmd as the leader of a new background job. It never
// touches the terminal.
func (r *Registry) SpawnBackground(ctx context.Context, cmd Command, interactive bool) (Process, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	pid, err := r.ctl.Start(cmd, StartOptions{})
	if err != nil {
		return Process{}, fmt.Errorf("spawning %s: %w", cmd.Path, err)
	}

	job := newJob(r.nextID(), cmd.label(), pid, pid)
	r.background = append(r.background, job)
	slog.DebugContext(ctx, "background job created",
		"job", job.id,
		"pid", pid,
		"label", job.label,
		"interactive", interactive && r.ctl.Terminal(),
	)
	return Process{Pid: pid, Pgid: job.pgroup, Job: job.id}, nil
}

// WaitForeground blocks until the foreground job stops or completes. A
// completed job is dropped, a stopped one moves to the background pool. With
// interactive set the terminal is handed back to the shell afterwards. The
// returned descriptor reports how the job ended, ok is false when there was no
// foreground job.
//
// The registry lock is not held while blocked in the OS wait.
func (r *Registry) WaitForeground(ctx context.Context, interactive bool) (Descriptor, bool) {
	r.mx.Lock()
	fg := r.foreground
	if fg == nil {
		r.mx.Unlock()
		return Descriptor{}, false
	}
	scope := fg.scope()
	interactive = interactive && r.ctl.Terminal()
	status := fg.Status()
	r.mx.Unlock()

	// a job switched in from the background starts stopped and turns running
	// once the continue events arrive
	for status != StatusCompleted {
		ev, _, err := r.ctl.Wait(scope, Block)

		r.mx.Lock()
		if err != nil {
			// nothing left to wait for in the group: the OS and the registry disagree
			slog.WarnContext(ctx, "foreground wait failed, dropping job",
				"job", fg.id,
				"pgid", fg.pgroup,
				"members", fg.live(),
				"error", err,
			)
			for _, pid := range fg.live() {
				fg.mark(pid, StatusCompleted)
			}
		} else {
			r.route(ctx, ev)
		}
		status = fg.Status()
		r.mx.Unlock()

		if status != StatusRunning {
			break
		}
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	if r.foreground == fg {
		r.foreground = nil
		if fg.Status() == StatusCompleted {
			slog.DebugContext(ctx, "foreground job completed", "job", fg.id)
		} else {
			r.background = append(r.background, fg)
			slog.DebugContext(ctx, "foreground job stopped", "job", fg.id)
		}
	}
	if interactive {
		r.reclaim(ctx)
	}
	return fg.Descriptor(), true
}

// Reap consumes every pending status change without blocking and discards
// background jobs which have completed.
func (r *Registry) Reap(ctx context.Context) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.poll(ctx, AnyChild)
	r.prune(ctx)
}

// BackgroundJobs reaps pending status changes of all jobs and returns a
// snapshot of the background pool. Completed jobs are never returned.
func (r *Registry) BackgroundJobs(ctx context.Context) []Descriptor {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.poll(ctx, AnyChild)
	r.prune(ctx)

	ret := make([]Descriptor, 0, len(r.background))
	for _, j := range r.background {
		ret = append(ret, j.Descriptor())
	}
	return ret
}

// Foreground returns the foreground job, if any.
func (r *Registry) Foreground() (Descriptor, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.foreground == nil {
		return Descriptor{}, false
	}
	return r.foreground.Descriptor(), true
}

// SwitchForeground brings background job id to the foreground and continues
// it. An existing foreground job is never preempted: the call then does
// nothing and reports success. A job found completed is discarded and also
// reported as success. It returns false only when no job with id exists.
func (r *Registry) SwitchForeground(ctx context.Context, id ID) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.foreground != nil {
		slog.DebugContext(ctx, "foreground job exists, not switching", "job", id, "foreground", r.foreground.id)
		return true
	}

	idx := slices.IndexFunc(r.background, func(j *Job) bool { return j.id == id })
	if idx < 0 {
		return false
	}
	job := r.background[idx]

	r.poll(ctx, job.scope())
	if job.Status() == StatusCompleted {
		r.background = slices.Delete(r.background, idx, idx+1)
		r.notify(ctx, job)
		return true
	}

	terminal := r.ctl.Terminal() && !job.shared()
	if terminal {
		if err := r.ctl.SetForeground(job.pgroup); err != nil {
			slog.WarnContext(ctx, "failed to set foreground job", "job", job.id, "pgid", job.pgroup, "error", err)
			return true
		}
	}
	if err := r.resume(job); err != nil {
		slog.WarnContext(ctx, "failed to continue job", "job", job.id, "pgid", job.pgroup, "error", err)
		if terminal {
			r.reclaim(ctx)
		}
		return true
	}

	r.background = slices.Delete(r.background, idx, idx+1)
	r.foreground = job
	slog.DebugContext(ctx, "job moved to foreground", "job", job.id, "pgid", job.pgroup)
	return true
}

// resume continues the members of j, one by one when they share the shell's
// group.
func (r *Registry) resume(j *Job) error {
	if !j.shared() {
		return r.ctl.Continue(j.pgroup)
	}
	for _, pid := range j.live() {
		if err := r.ctl.ContinueProcess(pid); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) setForeground(ctx context.Context, pgid int) {
	if err := r.ctl.SetForeground(pgid); err != nil {
		slog.WarnContext(ctx, "failed to set foreground job", "pgid", pgid, "error", err)
	}
}

func (r *Registry) reclaim(ctx context.Context) {
	if err := r.ctl.Reclaim(); err != nil {
		slog.WarnContext(ctx, "failed to reclaim terminal", "error", err)
	}
}
