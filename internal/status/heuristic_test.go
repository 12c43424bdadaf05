package status

import (
	"testing"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

func TestClassifyOutput(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   session.Status
		ok     bool
	}{
		{"empty", "", "", false},
		{"whitespace only", "  \n\t  ", "", false},
		{"shell prompt", "some output\nuser@host:~/proj$ ", session.StatusIdle, true},
		{"zsh prompt", "done\n❯ ", session.StatusIdle, true},
		{"root prompt", "# ", session.StatusIdle, true},
		{"busy esc hint", "Thinking...\nesc to interrupt", session.StatusWorking, true},
		{"busy token counter", "✻ Crunching (1.2k tokens)", session.StatusWorking, true},
		{"busy wins over prompt-looking tail", "esc to interrupt\n$ ", session.StatusWorking, true},
		{"old prompt scrolled past", "user@host$ make\nbuilding target", "", false},
		{"plain text", "just some log output", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ClassifyOutput(tc.output)
			if ok != tc.ok || got != tc.want {
				t.Errorf("ClassifyOutput(%q) = (%q, %v), want (%q, %v)", tc.output, got, ok, tc.want, tc.ok)
			}
		})
	}
}
