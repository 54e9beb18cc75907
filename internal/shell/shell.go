// Package shell is the interactive front end: it reads lines, parses them into
// pipelines and runs them as jobs through a job.Registry.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CZERTAINLY/Herder/internal/job"
	"github.com/CZERTAINLY/Herder/internal/model"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

type Option func(*Shell)

// WithControl replaces the platform job control.
func WithControl(c job.Control) Option {
	return func(s *Shell) {
		s.ctl = c
	}
}

// WithInteractive overrides the interactive setting of the configuration.
func WithInteractive(interactive bool) Option {
	return func(s *Shell) {
		s.forced = &interactive
	}
}

// WithStdio sets the descriptors shared with commands, os.Stdin, os.Stdout
// and os.Stderr by default.
func WithStdio(stdin, stdout, stderr *os.File) Option {
	return func(s *Shell) {
		s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
	}
}

// WithEnv sets the environment of commands, os.Environ by default.
func WithEnv(environ []string) Option {
	return func(s *Shell) {
		s.env = newEnv(environ)
	}
}

type Shell struct {
	cfg         model.Shell
	ctl         job.Control
	reg         *job.Registry
	forced      *bool
	interactive bool

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	env    *env

	mx    sync.Mutex
	notes []job.Descriptor

	status int
	exit   *int
}

func New(cfg model.Shell, opts ...Option) *Shell {
	s := &Shell{
		cfg:    cfg,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ctl == nil {
		s.ctl = job.NewControl()
	}
	if s.env == nil {
		s.env = newEnv(os.Environ())
	}
	if s.forced != nil {
		s.interactive = *s.forced
	} else {
		s.interactive = cfg.IsInteractive(s.ctl.Terminal())
	}
	if !s.interactive {
		s.ctl = job.Detached(s.ctl)
	}
	s.reg = job.NewRegistry(
		job.WithControl(s.ctl),
		job.WithObserver(s.observe),
	)
	return s
}

// Interactive reports whether the shell arbitrates the terminal and reads
// input through the line editor.
func (s *Shell) Interactive() bool {
	return s.interactive
}

// ExitCode is the argument of exit, or the status of the last line: 0 on
// success and 1 when the line failed.
func (s *Shell) ExitCode() int {
	if s.exit != nil {
		return *s.exit
	}
	return s.status
}

// Exited reports whether the exit builtin ran.
func (s *Shell) Exited() bool {
	return s.exit != nil
}

// Eval runs one input line and waits for its foreground job.
func (s *Shell) Eval(ctx context.Context, line string) error {
	err := s.eval(ctx, line)
	if err != nil {
		s.status = 1
	} else {
		s.status = 0
	}
	return err
}

func (s *Shell) eval(ctx context.Context, line string) error {
	p, err := parse(line)
	if err != nil {
		return err
	}
	if p.empty() {
		return nil
	}

	if isBuiltin(p.stages[0][0]) {
		if len(p.stages) > 1 || p.background {
			return fmt.Errorf("%w: builtin %s cannot run in a pipeline or in the background", ErrUsage, p.stages[0][0])
		}
		return s.runBuiltin(ctx, p.stages[0])
	}
	return s.runPipeline(ctx, p)
}

// runPipeline spawns every stage into the foreground job, connected by pipes,
// then waits for the job. A background line is a single new job.
func (s *Shell) runPipeline(ctx context.Context, p pipeline) error {
	if p.background && len(p.stages) > 1 {
		return fmt.Errorf("%w: background pipelines are not supported", ErrUsage)
	}

	cmds := make([]job.Command, len(p.stages))
	for i, words := range p.stages {
		if isBuiltin(words[0]) {
			return fmt.Errorf("%w: builtin %s cannot run in a pipeline", ErrUsage, words[0])
		}
		path, err := s.env.lookPath(words[0])
		if err != nil {
			return err
		}
		cmds[i] = job.Command{
			Path:   path,
			Args:   words[1:],
			Dir:    s.env.dir(),
			Env:    s.env.list(),
			Stdin:  s.stdin,
			Stdout: s.stdout,
			Stderr: s.stderr,
			Label:  p.text,
		}
	}

	if p.background {
		_, err := s.reg.SpawnBackground(ctx, cmds[0], s.interactive)
		return err
	}

	var pipes []*os.File
	closePipes := func() {
		for _, f := range pipes {
			_ = f.Close()
		}
		pipes = nil
	}
	defer closePipes()
	for i := 0; i < len(cmds)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("creating pipe: %w", err)
		}
		pipes = append(pipes, r, w)
		cmds[i].Stdout = w
		cmds[i+1].Stdin = r
	}

	for i, cmd := range cmds {
		if _, err := s.reg.SpawnForeground(ctx, cmd, s.interactive); err != nil {
			closePipes()
			if i > 0 {
				s.wait(ctx)
			}
			return err
		}
	}
	// readers only see end of file once the shell's copies are gone
	closePipes()
	s.wait(ctx)
	return nil
}

// wait blocks on the foreground job and reports a stop.
func (s *Shell) wait(ctx context.Context) {
	d, ok := s.reg.WaitForeground(ctx, s.interactive)
	if !ok || d.Status != job.StatusStopped {
		return
	}
	fmt.Fprintln(s.stderr)
	s.printNote(d)
}

func (s *Shell) observe(ctx context.Context, d job.Descriptor) {
	slog.DebugContext(ctx, "background job changed", "job", d.ID, "status", d.Status)
	if !s.cfg.Notify {
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.notes = append(s.notes, d)
}

// flushNotes prints the background job changes collected since the last
// prompt.
func (s *Shell) flushNotes() {
	s.mx.Lock()
	notes := s.notes
	s.notes = nil
	s.mx.Unlock()
	for _, d := range notes {
		s.printNote(d)
	}
}

var statusColor = map[job.Status]*color.Color{
	job.StatusRunning:   color.New(color.FgGreen),
	job.StatusStopped:   color.New(color.FgYellow),
	job.StatusCompleted: color.New(color.Faint),
}

func (s *Shell) printNote(d job.Descriptor) {
	status := d.Status.String()
	if c, ok := statusColor[d.Status]; ok {
		status = c.Sprintf("%-7s", status)
	}
	fmt.Fprintf(s.stderr, "[%d] %s %s\n", d.ID, status, d.Label)
}

func (s *Shell) report(err error) {
	fmt.Fprintf(s.stderr, "herder: %v\n", err)
}

// Run reads and evaluates lines until end of input, the exit builtin or ctx is
// done. Interactive shells use the line editor, others read stdin line by line.
func (s *Shell) Run(ctx context.Context) error {
	if s.interactive {
		return s.runEditor(ctx)
	}
	return s.runScript(ctx, s.stdin)
}

func (s *Shell) runScript(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for !s.Exited() && ctx.Err() == nil && scanner.Scan() {
		if err := s.Eval(ctx, scanner.Text()); err != nil {
			s.report(err)
		}
		s.reg.Reap(ctx)
		s.flushNotes()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (s *Shell) runEditor(ctx context.Context) error {
	gate := newLineGate(s.stdin)
	limit := s.cfg.HistoryLimit
	if limit == 0 {
		limit = -1
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.cfg.Prompt,
		HistoryFile:     expandHome(s.cfg.History),
		HistoryLimit:    limit,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           gate,
		Stdout:          s.stdout,
		Stderr:          s.stderr,
	})
	if err != nil {
		return fmt.Errorf("creating line editor: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	for !s.Exited() && ctx.Err() == nil {
		s.reg.Reap(ctx)
		s.flushNotes()

		gate.Open()
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("reading input: %w", err)
		}
		if err := s.Eval(ctx, line); err != nil {
			s.report(err)
		}
	}
	return nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
