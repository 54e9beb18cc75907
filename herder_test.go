package herder_test

import (
	"bytes"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var herderPath string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		slog.Warn("integration tests with -short are ignored")
		os.Exit(0)
	}

	if !isExecutable("herder-ci") {
		goBin, err := exec.LookPath("go")
		if err != nil {
			slog.Warn("cannot locate herder-ci binary nor go to build it, skipping integration tests")
			os.Exit(0)
		}
		build := exec.Command(goBin, "build", "-o", "herder-ci", "./cmd/herder/")
		build.Stdout, build.Stderr = os.Stderr, os.Stderr
		if err := build.Run(); err != nil {
			slog.Error("building herder-ci failed", "error", err)
			os.Exit(1)
		}
	}

	var err error
	herderPath, err = filepath.Abs("herder-ci")
	if err != nil {
		slog.Error("can't get abspath for herder-ci", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, env []string, args ...string) result {
	t.Helper()
	cmd := exec.CommandContext(t.Context(), herderPath, args...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	err := cmd.Run()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else {
		require.NoError(t, err)
	}
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeConfig(t *testing.T, yml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t, "version: 0\n")
	res := run(t, []string{"HERDERCONFIG=" + cfg}, "version")
	require.Zero(t, res.code, res.stderr)
	require.Contains(t, res.stdout, "config: "+cfg)
	require.Contains(t, res.stdout, "herder: ")
	require.Contains(t, res.stdout, "go:     go")
}

func TestCommand(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("tr"); err != nil {
		t.Skipf("skipped, binary tr not available: %v", err)
	}
	cfg := writeConfig(t, "version: 0\nlog:\n  output: discard\n")
	env := []string{"HERDERCONFIG=" + cfg}

	t.Run("pipeline", func(t *testing.T) {
		res := run(t, env, "-c", "echo hello | tr a-z A-Z")
		require.Zero(t, res.code, res.stderr)
		require.Equal(t, "HELLO\n", res.stdout)
	})
	t.Run("exit code", func(t *testing.T) {
		res := run(t, env, "-c", "exit 4")
		require.Equal(t, 4, res.code)
	})
	t.Run("failure", func(t *testing.T) {
		res := run(t, env, "-c", "job switch 7")
		require.Equal(t, 1, res.code)
		require.Equal(t, "herder: job 7: not found\n", res.stderr)
	})
	t.Run("job list", func(t *testing.T) {
		res := run(t, env, "-c", "job list --format json")
		require.Zero(t, res.code, res.stderr)
		require.JSONEq(t, "[]", res.stdout)
	})
}

func TestStdinScript(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t, "version: 0\nlog:\n  output: discard\n")
	cmd := exec.CommandContext(t.Context(), herderPath)
	cmd.Env = append(os.Environ(), "HERDERCONFIG="+cfg)
	cmd.Stdin = strings.NewReader("echo first\nexit 2\necho second\n")
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.ExitCode())
	require.Equal(t, "first\n", string(out))
}

func TestConfig(t *testing.T) {
	t.Parallel()
	t.Run("invalid", func(t *testing.T) {
		cfg := writeConfig(t, "version: 0\nshell:\n  colour: true\n")
		res := run(t, []string{"HERDERCONFIG=" + cfg}, "-c", "exit")
		require.Equal(t, 1, res.code)
		require.Contains(t, res.stderr, "invalid configuration")
		require.Contains(t, res.stderr, "parsing config")
	})
	t.Run("verbose from environment", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "herder.log")
		cfg := writeConfig(t, "version: 0\nlog:\n  format: text\n  output: "+logPath+"\n")
		res := run(t, []string{"HERDERCONFIG=" + cfg, "HERDER_VERBOSE=true"}, "-c", "exit")
		require.Zero(t, res.code, res.stderr)

		b, err := os.ReadFile(logPath)
		require.NoError(t, err)
		require.Contains(t, string(b), "level=DEBUG")
		require.Contains(t, string(b), "configPath="+cfg)
	})
	t.Run("default is stored", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("config dir layout checked on linux only")
		}
		cfgHome := t.TempDir()
		res := run(t, []string{"XDG_CONFIG_HOME=" + cfgHome, "HERDER_LOG_FORMAT=text"}, "-c", "exit")
		require.Zero(t, res.code, res.stderr)

		b, err := os.ReadFile(filepath.Join(cfgHome, "herder", "herder.yaml"))
		require.NoError(t, err)
		require.Contains(t, string(b), "history_limit: 1000")
		require.Contains(t, string(b), "interactive: auto")
	})
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
