package shell

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

var ErrNotFound = errors.New("not found")

// env is the environment the shell hands to external commands.
type env struct {
	vars map[string]string
}

func newEnv(environ []string) *env {
	e := &env{vars: make(map[string]string, len(environ))}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		e.vars[k] = v
	}
	if _, ok := e.vars["PWD"]; !ok {
		if wd, err := os.Getwd(); err == nil {
			e.vars["PWD"] = wd
		}
	}
	return e
}

func (e *env) get(key string) string {
	return e.vars[key]
}

func (e *env) set(key, value string) {
	e.vars[key] = value
}

// list returns KEY=value pairs sorted by key.
func (e *env) list() []string {
	ret := make([]string, 0, len(e.vars))
	for _, k := range slices.Sorted(maps.Keys(e.vars)) {
		ret = append(ret, k+"="+e.vars[k])
	}
	return ret
}

// dir is the working directory for children: PWD when it names an existing
// directory, otherwise "" and the child inherits the shell's.
func (e *env) dir() string {
	pwd := e.vars["PWD"]
	if pwd == "" {
		return ""
	}
	info, err := os.Stat(pwd)
	if err != nil || !info.IsDir() {
		return ""
	}
	return pwd
}

// chdir resolves path against PWD and makes it the new PWD.
func (e *env) chdir(path string) error {
	if path == "" {
		path = e.vars["HOME"]
		if path == "" {
			return fmt.Errorf("cd: HOME not set")
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.dir(), path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cd: %s: not a directory", path)
	}
	if old := e.vars["PWD"]; old != "" {
		e.vars["OLDPWD"] = old
	}
	e.vars["PWD"] = path
	return nil
}

// lookPath resolves the program name of a command. Names containing a path
// separator are taken relative to PWD, others are searched in the PATH of the
// shell environment, the one commands receive.
func (e *env) lookPath(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		if !filepath.IsAbs(name) {
			name = filepath.Join(e.dir(), name)
		}
		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return name, nil
	}
	for _, dir := range filepath.SplitList(e.vars["PATH"]) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(e.dir(), candidate)
		}
		// a name with a separator is only checked for being executable
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
