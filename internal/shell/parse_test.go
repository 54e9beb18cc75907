package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	var tests = []struct {
		scenario string
		given    string
		then     pipeline
	}{
		{
			scenario: "empty",
			given:    "   ",
			then:     pipeline{},
		},
		{
			scenario: "words",
			given:    "  sleep   10 ",
			then:     pipeline{stages: [][]string{{"sleep", "10"}}, text: "sleep   10"},
		},
		{
			scenario: "quotes",
			given:    `echo 'a b' "c \"d\"" e\ f ''`,
			then: pipeline{
				stages: [][]string{{"echo", "a b", `c "d"`, "e f", ""}},
				text:   `echo 'a b' "c \"d\"" e\ f ''`,
			},
		},
		{
			scenario: "quoted separators",
			given:    `grep '|' "&"`,
			then:     pipeline{stages: [][]string{{"grep", "|", "&"}}, text: `grep '|' "&"`},
		},
		{
			scenario: "pipeline",
			given:    "ls -l|wc -l | sort",
			then: pipeline{
				stages: [][]string{{"ls", "-l"}, {"wc", "-l"}, {"sort"}},
				text:   "ls -l|wc -l | sort",
			},
		},
		{
			scenario: "background",
			given:    "make -j8 & ",
			then:     pipeline{stages: [][]string{{"make", "-j8"}}, background: true, text: "make -j8"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			p, err := parse(tt.given)
			require.NoError(t, err)
			require.Equal(t, tt.then, p)
		})
	}
}

func TestParse_Fail(t *testing.T) {
	var tests = []struct {
		scenario string
		given    string
		then     string
	}{
		{"unterminated single", "echo 'abc", "syntax error: unterminated quote"},
		{"unterminated double", `echo "abc`, "syntax error: unterminated quote"},
		{"dangling backslash", `echo \`, "syntax error: dangling backslash"},
		{"leading pipe", "| wc", "syntax error: empty pipeline stage"},
		{"trailing pipe", "ls |", "syntax error: empty pipeline stage"},
		{"double pipe", "ls || wc", "syntax error: empty pipeline stage"},
		{"lonely ampersand", "&", "syntax error: empty pipeline stage"},
		{"ampersand in the middle", "sleep 1 & ls", "syntax error: & must end the line"},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			_, err := parse(tt.given)
			require.ErrorIs(t, err, ErrSyntax)
			require.EqualError(t, err, tt.then)
		})
	}
}
