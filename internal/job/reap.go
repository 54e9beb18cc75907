package job

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// poll drains every pending status change of scope without blocking. The
// caller holds the registry lock.
func (r *Registry) poll(ctx context.Context, scope int) {
	for {
		ev, ok, err := r.ctl.Wait(scope, Poll)
		switch {
		case errors.Is(err, ErrNoChild):
			r.orphan(ctx, scope)
			return
		case err != nil:
			slog.WarnContext(ctx, "reap failed", "scope", scope, "error", err)
			return
		case !ok:
			return
		}
		r.route(ctx, ev)
	}
}

// route applies ev to the job owning its pid, foreground first. An event for an
// unknown pid means the registry is out of sync with the OS, it is logged and
// dropped.
func (r *Registry) route(ctx context.Context, ev Event) {
	if fg := r.foreground; fg != nil && fg.mark(ev.Pid, ev.Status) {
		return
	}
	for _, j := range r.background {
		old := j.Status()
		if !j.mark(ev.Pid, ev.Status) {
			continue
		}
		if now := j.Status(); now != old && now != StatusCompleted {
			r.notify(ctx, j)
		}
		return
	}
	slog.WarnContext(ctx, "reaped process not tracked by any job", "pid", ev.Pid, "status", ev.Status)
}

// orphan handles a wait which found no children for scope: live members of
// the matching jobs cannot be waited for anymore and are marked completed.
func (r *Registry) orphan(ctx context.Context, scope int) {
	jobs := slices.Clone(r.background)
	if r.foreground != nil {
		jobs = append(jobs, r.foreground)
	}
	for _, j := range jobs {
		if scope != AnyChild && j.pgroup != scope {
			continue
		}
		live := j.live()
		if len(live) == 0 {
			continue
		}
		slog.WarnContext(ctx, "job members are no longer children of the shell", "job", j.id, "pids", live)
		for _, pid := range live {
			j.mark(pid, StatusCompleted)
		}
	}
}

// prune discards completed background jobs.
func (r *Registry) prune(ctx context.Context) {
	r.background = slices.DeleteFunc(r.background, func(j *Job) bool {
		if j.Status() != StatusCompleted {
			return false
		}
		slog.DebugContext(ctx, "background job completed", "job", j.id)
		r.notify(ctx, j)
		return true
	})
}

func (r *Registry) notify(ctx context.Context, j *Job) {
	if r.observer != nil {
		r.observer(ctx, j.Descriptor())
	}
}
