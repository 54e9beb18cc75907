package shell

import (
	"errors"
	"fmt"
	"strings"
)

var ErrSyntax = errors.New("syntax error")

// pipeline is one parsed input line: stages joined by |, optionally sent to
// the background with a trailing &.
type pipeline struct {
	stages     [][]string
	background bool
	text       string // source without the trailing &
}

func (p pipeline) empty() bool {
	return len(p.stages) == 0
}

// parse splits line into words and pipeline stages. Words are separated by
// blanks, single quotes are literal, double quotes and backslashes escape.
func parse(line string) (pipeline, error) {
	var (
		p       pipeline
		stage   []string
		word    strings.Builder
		inWord  bool
		pending bool // a | was seen and needs a following stage
	)
	endWord := func() {
		if inWord {
			stage = append(stage, word.String())
			word.Reset()
			inWord = false
		}
	}
	endStage := func() error {
		endWord()
		if len(stage) == 0 {
			return fmt.Errorf("%w: empty pipeline stage", ErrSyntax)
		}
		p.stages = append(p.stages, stage)
		stage = nil
		return nil
	}

	rs := []rune(line)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case p.background:
			if c != ' ' && c != '\t' {
				return pipeline{}, fmt.Errorf("%w: & must end the line", ErrSyntax)
			}
		case c == ' ' || c == '\t':
			endWord()
		case c == '\'':
			end := indexRune(rs, i+1, '\'')
			if end < 0 {
				return pipeline{}, fmt.Errorf("%w: unterminated quote", ErrSyntax)
			}
			word.WriteString(string(rs[i+1 : end]))
			inWord = true
			i = end
		case c == '"':
			i++
			for ; i < len(rs) && rs[i] != '"'; i++ {
				if rs[i] == '\\' && i+1 < len(rs) && (rs[i+1] == '"' || rs[i+1] == '\\') {
					i++
				}
				word.WriteRune(rs[i])
			}
			if i == len(rs) {
				return pipeline{}, fmt.Errorf("%w: unterminated quote", ErrSyntax)
			}
			inWord = true
		case c == '\\':
			if i+1 == len(rs) {
				return pipeline{}, fmt.Errorf("%w: dangling backslash", ErrSyntax)
			}
			i++
			word.WriteRune(rs[i])
			inWord = true
		case c == '|':
			if err := endStage(); err != nil {
				return pipeline{}, err
			}
			pending = true
		case c == '&':
			if err := endStage(); err != nil {
				return pipeline{}, err
			}
			pending = false
			p.background = true
			p.text = strings.TrimSpace(string(rs[:i]))
		default:
			word.WriteRune(c)
			inWord = true
		}
	}

	if p.background {
		return p, nil
	}
	endWord()
	if len(stage) == 0 {
		if pending {
			return pipeline{}, fmt.Errorf("%w: empty pipeline stage", ErrSyntax)
		}
		return p, nil
	}
	p.stages = append(p.stages, stage)
	p.text = strings.TrimSpace(line)
	return p, nil
}

func indexRune(rs []rune, from int, r rune) int {
	for i := from; i < len(rs); i++ {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
