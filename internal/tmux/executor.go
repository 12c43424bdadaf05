// Package tmux wraps the tmux binary behind an Executor interface so the
// terminal adapter, registry and gateway never shell out directly. Tests
// inject a fake executor.
package tmux

import "context"

// Executor abstracts the tmux operations the server needs.
type Executor interface {
	// NewSession creates a detached session running command in workDir.
	// An empty command starts the default shell.
	NewSession(name, workDir, command string) error
	// KillSession terminates a session. Killing a session that is already
	// gone is not an error.
	KillSession(name string) error
	// SessionExists checks whether the named session is live.
	SessionExists(name string) (bool, error)
	// ListSessions returns name -> last activity (unix seconds) for every
	// live session.
	ListSessions() (map[string]int64, error)
	// SendKeys sends keys to a session. With literal set, keys are sent
	// verbatim instead of being interpreted as key names.
	SendKeys(name, keys string, literal bool) error
	// CapturePaneHistory dumps up to lines of scrollback. The context
	// bounds the wait; history capture is best-effort.
	CapturePaneHistory(ctx context.Context, name string, lines int) (string, error)
	// ResizeWindow resizes the session's window to match the client.
	ResizeWindow(name string, cols, rows int) error
	// SetOption sets a session option (scrollback depth, mouse mode).
	SetOption(name, option, value string) error
}
