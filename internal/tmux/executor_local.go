package tmux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// LocalExecutor runs tmux commands on the local machine.
type LocalExecutor struct{}

// NewLocalExecutor creates a new local executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// NewSession creates a new detached tmux session.
func (e *LocalExecutor) NewSession(name, workDir, command string) error {
	if workDir == "" {
		workDir = os.Getenv("HOME")
	}
	args := []string{"new-session", "-d", "-s", name, "-c", workDir}
	if command != "" {
		args = append(args, command)
	}
	cmd := exec.Command("tmux", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to create tmux session: %w (output: %s)", err, string(output))
	}
	return nil
}

// KillSession terminates a tmux session. A missing session is not an error.
func (e *LocalExecutor) KillSession(name string) error {
	cmd := exec.Command("tmux", "kill-session", "-t", name)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return err
	}
	return nil
}

// SessionExists checks if a session exists.
func (e *LocalExecutor) SessionExists(name string) (bool, error) {
	cmd := exec.Command("tmux", "has-session", "-t", name)
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means session doesn't exist
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns all sessions with their window activity timestamps.
func (e *LocalExecutor) ListSessions() (map[string]int64, error) {
	cmd := exec.Command("tmux", "list-windows", "-a", "-F", "#{session_name}\t#{window_activity}")
	output, err := cmd.Output()
	if err != nil {
		// tmux not running or error
		return nil, err
	}

	sessions := make(map[string]int64)
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		name := parts[0]
		activity, _ := strconv.ParseInt(parts[1], 10, 64)
		// Keep maximum activity (most recent) if session has multiple windows
		if existing, ok := sessions[name]; !ok || activity > existing {
			sessions[name] = activity
		}
	}
	return sessions, nil
}

// SendKeys sends keys to a session.
func (e *LocalExecutor) SendKeys(name, keys string, literal bool) error {
	args := []string{"send-keys"}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, "-t", name, keys)
	cmd := exec.Command("tmux", args...)
	return cmd.Run()
}

// CapturePaneHistory captures scrollback history, joined-wrapped, bounded by
// lines. The context limits how long the capture may take.
func (e *LocalExecutor) CapturePaneHistory(ctx context.Context, name string, lines int) (string, error) {
	start := "-"
	if lines > 0 {
		start = fmt.Sprintf("-%d", lines)
	}
	cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-t", name, "-p", "-e", "-J", "-S", start)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to capture history: %w", err)
	}
	return string(output), nil
}

// ResizeWindow resizes the session's window.
func (e *LocalExecutor) ResizeWindow(name string, cols, rows int) error {
	cmd := exec.Command("tmux", "resize-window", "-t", name,
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	return cmd.Run()
}

// SetOption sets a tmux option for a session.
func (e *LocalExecutor) SetOption(name, option, value string) error {
	cmd := exec.Command("tmux", "set-option", "-t", name, option, value)
	return cmd.Run()
}
