package terminal

import (
	"fmt"
	"sort"
	"strings"
)

// EscapeShellValue makes value safe inside a double-quoted shell string.
// Backslashes are doubled first, then quotes, backticks and dollar signs are
// escaped, and embedded newlines are collapsed to spaces (an export line must
// stay a single line).
func EscapeShellValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	value = strings.ReplaceAll(value, "`", "\\`")
	value = strings.ReplaceAll(value, `$`, `\$`)
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return value
}

// InitScript generates the shell script a fresh session's PTY runs: export
// the session name and environment variables, tune the tmux session for
// browser terminals, then exec an interactive shell. Variables with empty or
// whitespace-only values are dropped from the exported set entirely.
func InitScript(sessionName string, envVars map[string]string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "export AGENT_RELAY_SESSION=\"%s\"\n", EscapeShellValue(sessionName))

	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := envVars[k]
		if strings.TrimSpace(v) == "" {
			continue
		}
		fmt.Fprintf(&b, "export %s=\"%s\"\n", k, EscapeShellValue(v))
	}

	// Deep scrollback and mouse support for the web terminal.
	fmt.Fprintf(&b, "tmux set-option -t \"%s\" history-limit 50000 >/dev/null 2>&1\n", EscapeShellValue(sessionName))
	fmt.Fprintf(&b, "tmux set-option -t \"%s\" mouse on >/dev/null 2>&1\n", EscapeShellValue(sessionName))

	b.WriteString("exec \"${SHELL:-/bin/bash}\" -i\n")
	return b.String()
}
