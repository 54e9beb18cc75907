package model

import (
	"fmt"
	"io"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	InteractiveAuto   = "auto"
	InteractiveAlways = "always"
	InteractiveNever  = "never"

	LogFormatJSON = "json"
	LogFormatText = "text"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int   `json:"version" yaml:"version"` // fixed 0 for now
	Shell   Shell `json:"shell" yaml:"shell"`
	Log     Log   `json:"log" yaml:"log"`
}

// Shell configures the interactive front end.
type Shell struct {
	Prompt       string `json:"prompt" yaml:"prompt"`
	History      string `json:"history" yaml:"history"` // "" disables the history file
	HistoryLimit int    `json:"history_limit" yaml:"history_limit"`
	Interactive  string `json:"interactive" yaml:"interactive"` // "auto" | "always" | "never"
	Notify       bool   `json:"notify" yaml:"notify"`
}

type Log struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Format  string `json:"format" yaml:"format"` // "json" | "text"
	Output  string `json:"output" yaml:"output"` // "stderr"|"stdout"|"discard"|path
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// Fields left out of the document get the schema defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	if out.Version != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, out.Version)
	}

	return &out, nil
}

// DefaultConfig returns the configuration of an empty document.
func DefaultConfig() Config {
	cfg, err := LoadConfig(strings.NewReader("version: 0\n"))
	if err != nil {
		panic(err)
	}
	return *cfg
}

// IsInteractive resolves the interactive setting, terminal tells whether stdin
// is a terminal.
func (s Shell) IsInteractive(terminal bool) bool {
	switch s.Interactive {
	case InteractiveAlways:
		return true
	case InteractiveNever:
		return false
	default:
		return terminal
	}
}
