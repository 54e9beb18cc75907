package job

import (
	"fmt"
	"slices"
)

// ID identifies a job for the lifetime of the shell. IDs start at 1 and are
// never reused.
type ID uint64

// Status is the derived state of a job or the new state of a single process.
type Status int

const (
	StatusRunning Status = iota
	StatusStopped
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusCompleted:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText makes Status render as its name in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Descriptor is a point in time snapshot of a job.
type Descriptor struct {
	ID     ID     `json:"id" yaml:"id"`
	Label  string `json:"command" yaml:"command"`
	Status Status `json:"status" yaml:"status"`
}

// Job is one pipeline of processes sharing a process group. Every member pid is
// in exactly one of the running, stopped or completed partitions. A job of a
// non-interactive shell stays in the shell's own group and has pgroup 0.
type Job struct {
	id     ID
	label  string
	pgroup int
	pids   []int
	state  map[int]Status
	count  [3]int
}

// shared reports whether the members live in the shell's process group.
func (j *Job) shared() bool {
	return j.pgroup == 0
}

// scope is the wait scope covering the members: the group, or every child of
// the shell for a shared job, whose events route to members by pid.
func (j *Job) scope() int {
	if j.shared() {
		return AnyChild
	}
	return j.pgroup
}

func newJob(id ID, label string, leader, pgroup int) *Job {
	j := &Job{
		id:     id,
		label:  label,
		pgroup: pgroup,
		state:  make(map[int]Status),
	}
	j.add(leader)
	return j
}

func (j *Job) ID() ID         { return j.id }
func (j *Job) Label() string  { return j.label }
func (j *Job) Pgroup() int    { return j.pgroup } // 0 for the shell's group
func (j *Job) Members() []int { return slices.Clone(j.pids) }

// Status is running while any member runs, stopped while any member is stopped
// and completed once every member has finished.
func (j *Job) Status() Status {
	switch {
	case j.count[StatusRunning] > 0:
		return StatusRunning
	case j.count[StatusStopped] > 0:
		return StatusStopped
	default:
		return StatusCompleted
	}
}

func (j *Job) Descriptor() Descriptor {
	return Descriptor{ID: j.id, Label: j.label, Status: j.Status()}
}

// add puts a freshly spawned pid into the running partition.
func (j *Job) add(pid int) {
	if _, ok := j.state[pid]; ok {
		return
	}
	j.pids = append(j.pids, pid)
	j.state[pid] = StatusRunning
	j.count[StatusRunning]++
}

// mark moves pid into the partition for status. It returns false when pid is
// not a member. Completed is final: later events for that pid are ignored.
func (j *Job) mark(pid int, status Status) bool {
	old, ok := j.state[pid]
	if !ok {
		return false
	}
	if old == StatusCompleted || old == status {
		return true
	}
	j.count[old]--
	j.count[status]++
	j.state[pid] = status
	return true
}

// live returns members that have not completed yet.
func (j *Job) live() []int {
	var ret []int
	for _, pid := range j.pids {
		if j.state[pid] != StatusCompleted {
			ret = append(ret, pid)
		}
	}
	return ret
}
