// Package job implements job control for an interactive shell.
//
// Every external process of an interactive shell runs in a process group.
// Processes started while a foreground job exists join its group, which is how
// pipelines are formed; otherwise the process leads a new group and a new job.
// Without a terminal to hand over, foreground processes stay in the shell's own
// group and are tracked by pid. The Registry keeps at
// most one foreground job and an ordered pool of background jobs.
//
// A job's status is derived from its members:
//
//	running    at least one member runs
//	stopped    no member runs, at least one is stopped
//	completed  every member finished, the job is removed
//
// Transitions come from reaping only. A stopped foreground job moves to the
// background pool, SwitchForeground moves it back and continues its group.
//
// Terminal ownership is set twice for an interactive foreground spawn: once in
// the child between fork and exec and once by the shell right after the spawn.
// Both writes set the same group, so whichever comes last wins without harm and
// the child never reads the terminal from a background group.
//
// The Control interface hides the platform. On unix systems it is backed by
// setpgid, tcsetpgrp, killpg and wait4. Elsewhere a stub runs processes without
// groups and never reports a controlling terminal.
package job
