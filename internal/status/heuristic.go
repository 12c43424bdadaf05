package status

import (
	"regexp"
	"strings"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// Shell prompts end in one of these once trailing whitespace is stripped.
var promptMarkers = regexp.MustCompile(`(?m)[$%>❯#] ?$`)

// Output fragments that indicate a foreground tool is running.
var busyMarkers = []string{
	"esc to interrupt",
	"ctrl+c to interrupt",
	"Running…",
	"tokens",
	"✻",
	"✽",
	"⏳",
}

// ClassifyOutput inspects recent terminal output and approximates a status
// for sessions without hook integration. The second return is false when the
// output is ambiguous and no classification should be applied.
func ClassifyOutput(output string) (session.Status, bool) {
	trimmed := strings.TrimRight(output, " \t\r\n")
	if trimmed == "" {
		return "", false
	}

	// Busy markers win: an agent streaming output often redraws a prompt-
	// looking status line underneath.
	for _, marker := range busyMarkers {
		if strings.Contains(trimmed, marker) {
			return session.StatusWorking, true
		}
	}

	// Only the tail matters for prompt detection; old prompts scroll past.
	tail := trimmed
	if i := strings.LastIndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	if promptMarkers.MatchString(tail) {
		return session.StatusIdle, true
	}

	return "", false
}
