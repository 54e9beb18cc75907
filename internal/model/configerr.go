package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	cue "cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// ConfigErrorDetail is one validation problem of a config document.
type ConfigErrorDetail struct {
	Path    string // shell.history_limit
	Code    string // unknown_field | missing_required | conflicting_values | invalid_enum | type_mismatch | validation_error
	Message string
	Pos     ConfigErrorPosition
	Raw     string
}

func (c ConfigErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

type ConfigErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

var (
	reIncomplete  = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed  = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reEnum        = regexp.MustCompile(`(?i)empty disjunction|must be one of|expected one of`)
	reConflict    = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reExpectedGot = regexp.MustCompile(`(?i)expected .* got .*|invalid value`)
)

// ErrorDetails explains a LoadConfig validation error field by field. Errors
// which do not come from the schema yield a single validation_error detail.
func ErrorDetails(err error) []ConfigErrorDetail {
	if err == nil {
		return nil
	}

	type key struct {
		path string
		pos  ConfigErrorPosition
	}
	seen := make(map[key]struct{})

	var out []ConfigErrorDetail
	for _, e := range cueerrors.Errors(err) {
		raw, args := e.Msg()
		path := normalizePath(e.Path())
		pos := position(e)
		if _, ok := seen[key{path, pos}]; ok {
			continue
		}
		seen[key{path, pos}] = struct{}{}

		code, msg := classify(fmt.Sprintf(raw, args...), path)
		if values, dflt := enumStrings(lookup(schema, path)); len(values) > 1 {
			msg += fmt.Sprintf(": possible values (%s)", strings.Join(values, ","))
			if dflt != "" {
				msg += fmt.Sprintf(" (default %s)", dflt)
			}
		}

		out = append(out, ConfigErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Pos:     pos,
			Raw:     e.Error(),
		})
	}
	return out
}

func enumStrings(v cue.Value) (values []string, def string) {
	if !v.Exists() {
		return nil, ""
	}
	if d, ok := v.Default(); ok {
		if s, err := d.String(); err == nil {
			def = s
		}
	}
	op, args := v.Expr()
	if op != cue.OrOp {
		return nil, def
	}
	for _, a := range args {
		if a.Kind() != cue.StringKind {
			continue
		}
		s, err := a.String()
		if err != nil {
			continue
		}
		values = append(values, s)
	}
	return values, def
}

func position(err cueerrors.Error) ConfigErrorPosition {
	for _, r := range cueerrors.Positions(err) {
		if r.Filename() == "" {
			continue
		}
		return ConfigErrorPosition{
			Filename: r.Filename(),
			Line:     r.Line(),
			Column:   r.Column(),
		}
	}
	return ConfigErrorPosition{}
}

func normalizePath(p []string) string {
	if len(p) == 0 {
		return ""
	}
	// Remove leading definition (#Config)
	if strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string) (code, msg string) {
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("Field %s is not allowed", last(path))
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("Field %s is required", last(path))
	case reEnum.MatchString(raw):
		return "invalid_enum", fmt.Sprintf("Field %s has invalid value", last(path))
	case reConflict.MatchString(raw):
		return "conflicting_values", fmt.Sprintf("Conflicting values for %s", last(path))
	case reExpectedGot.MatchString(raw):
		return "type_mismatch", fmt.Sprintf("Field %s has wrong type/value", last(path))
	default:
		return "validation_error", raw
	}
}

func lookup(root cue.Value, path string) cue.Value {
	if path == "" {
		return root
	}
	return root.LookupPath(cue.ParsePath(path))
}

func last(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}
