package gateway

import (
	"fmt"
	"strings"

	"github.com/asheshgoplani/agent-relay/internal/launchcfg"
)

// RalphConfig describes a looped agent launch requested by the client.
type RalphConfig struct {
	Prompt            string `json:"prompt"`
	MaxIterations     int    `json:"maxIterations"`
	CompletionPromise string `json:"completionPromise"`
	TrustMode         bool   `json:"trustMode"`
	UseWorktree       bool   `json:"useWorktree"`
}

// escapePrompt prepares free-form text for embedding inside a double-quoted
// shell argument. Newlines become spaces so the command stays on one line.
func escapePrompt(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// claudeCommand builds the plain agent launch line.
func claudeCommand(lc *launchcfg.Config) string {
	parts := append([]string{lc.Command}, lc.ExtraArgs...)
	return strings.Join(parts, " ")
}

// ralphCommand builds the looped launch line. The whole subcommand rides as
// one double-quoted argument to the agent binary.
func ralphCommand(lc *launchcfg.Config, rc RalphConfig) string {
	var sub strings.Builder
	sub.WriteString("/ralph-loop:ralph-loop")
	if p := escapePrompt(rc.Prompt); p != "" {
		sub.WriteString(" " + p)
	}
	if rc.MaxIterations > 0 {
		fmt.Fprintf(&sub, " --max-iterations %d", rc.MaxIterations)
	}
	if rc.CompletionPromise != "" {
		fmt.Fprintf(&sub, ` --completion-promise \"%s\"`, escapePrompt(rc.CompletionPromise))
	}
	if rc.UseWorktree {
		sub.WriteString(" --worktree")
	}

	parts := append([]string{lc.Command}, lc.ExtraArgs...)
	parts = append(parts, fmt.Sprintf(`"%s"`, sub.String()))
	if rc.TrustMode {
		parts = append(parts, lc.TrustFlag)
	}
	return strings.Join(parts, " ")
}
