package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/Herder/internal/job"
	"github.com/spf13/cobra"
)

var ErrUsage = errors.New("usage")

var builtins = map[string]struct{}{
	"job":  {},
	"cd":   {},
	"exit": {},
	"help": {},
}

func isBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// runBuiltin executes args through a fresh command tree, so flag values never
// leak between lines.
func (s *Shell) runBuiltin(ctx context.Context, args []string) error {
	root := s.builtinCmd()
	root.SetArgs(args)
	root.SetIn(s.stdin)
	root.SetOut(s.stdout)
	root.SetErr(s.stderr)
	return root.ExecuteContext(ctx)
}

func (s *Shell) builtinCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "herder",
		Short:         "herder builtin commands",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Job control",
	}

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs := records(s.reg.BackgroundJobs(cmd.Context()))
			return render(cmd.OutOrStdout(), format, recs)
		},
	}
	listCmd.Flags().StringVar(&format, "format", FormatTable, "output format: table, json or yaml")

	startCmd := &cobra.Command{
		Use:                "start <command> [args...]",
		Short:              "Start a background job",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: job start <command> [args...]", ErrUsage)
			}
			return s.startJob(cmd.Context(), args)
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <id>",
		Short: "Bring a background job to the foreground",
		Args:  cobra.ExactArgs(1),
		// a negative id is an argument, not a flag
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: job id must be an integer: %q", ErrUsage, args[0])
			}
			ctx := cmd.Context()
			if id <= 0 || !s.reg.SwitchForeground(ctx, job.ID(id)) {
				return fmt.Errorf("job %d: %w", id, ErrNotFound)
			}
			s.wait(ctx)
			return nil
		},
	}
	jobCmd.AddCommand(listCmd, startCmd, switchCmd)

	cdCmd := &cobra.Command{
		Use:   "cd [dir]",
		Short: "Change the working directory of commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			return s.env.chdir(dir)
		},
	}

	exitCmd := &cobra.Command{
		Use:   "exit [code]",
		Short: "Leave the shell",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			code := s.status
			if len(args) == 1 {
				var err error
				code, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("%w: exit code must be an integer: %q", ErrUsage, args[0])
				}
			}
			s.exit = &code
			return nil
		},
	}

	root.AddCommand(jobCmd, cdCmd, exitCmd)
	return root
}

// startJob spawns args as a new background job. The job is labelled with the
// command as typed.
func (s *Shell) startJob(ctx context.Context, args []string) error {
	path, err := s.env.lookPath(args[0])
	if err != nil {
		return fmt.Errorf("job start: %w", err)
	}
	cmd := job.Command{
		Path:   path,
		Args:   args[1:],
		Dir:    s.env.dir(),
		Env:    s.env.list(),
		Stdin:  s.stdin,
		Stdout: s.stdout,
		Stderr: s.stderr,
		Label:  strings.Join(args, " "),
	}
	if _, err := s.reg.SpawnBackground(ctx, cmd, s.interactive); err != nil {
		return fmt.Errorf("job start: %w", err)
	}
	return nil
}
