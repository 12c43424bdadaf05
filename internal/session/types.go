// Package session defines the session domain model shared by the store, the
// status classifier, the registry and the gateway.
package session

import "time"

// Status is the canonical session status.
type Status string

const (
	StatusInit           Status = "init"
	StatusWorking        Status = "working"
	StatusNeedsAttention Status = "needs_attention"
	StatusIdle           Status = "idle"
)

// Source records which kind of signal last set the status.
type Source string

const (
	SourceHook      Source = "hook"
	SourceHeuristic Source = "heuristic"
	SourceNone      Source = "none"
)

// AttentionReason sub-classifies needs_attention.
type AttentionReason string

const (
	ReasonPermission   AttentionReason = "permission"
	ReasonInput        AttentionReason = "input"
	ReasonPlanApproval AttentionReason = "plan_approval"
	ReasonTaskComplete AttentionReason = "task_complete"
)

// Hook event names pushed by the agent process.
const (
	EventSessionStart      = "SessionStart"
	EventPreToolUse        = "PreToolUse"
	EventPostToolUse       = "PostToolUse"
	EventPermissionRequest = "PermissionRequest"
	EventNotification      = "Notification"
	EventStop              = "Stop"
	EventSessionEnd        = "SessionEnd"

	// EventHeartbeatTimeout labels the monitor-driven working->idle
	// transition in the status history.
	EventHeartbeatTimeout = "HeartbeatTimeout"
)

// Telemetry carries the optional status-line metrics reported by the agent.
// Zero values mean "not reported"; transitions must carry these through
// unchanged.
type Telemetry struct {
	Model        string  `json:"model,omitempty"`
	CostUSD      float64 `json:"costUsd,omitempty"`
	ContextUsage float64 `json:"contextUsage,omitempty"`
	LinesAdded   int     `json:"linesAdded,omitempty"`
	LinesRemoved int     `json:"linesRemoved,omitempty"`
}

// Session is the persisted session record.
type Session struct {
	Name            string          `json:"name"`
	Project         string          `json:"project"`
	Status          Status          `json:"status"`
	StatusSource    Source          `json:"statusSource"`
	AttentionReason AttentionReason `json:"attentionReason,omitempty"`
	LastEvent       string          `json:"lastEvent,omitempty"`

	Telemetry

	EnvironmentID string `json:"environmentId,omitempty"`

	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	LastActivity     time.Time  `json:"lastActivity"`
	LastStatusChange time.Time  `json:"lastStatusChange"`
	ArchivedAt       *time.Time `json:"archivedAt,omitempty"`
}

// Archived reports whether the session has been soft-deleted.
func (s *Session) Archived() bool {
	return s.ArchivedAt != nil
}

// HistoryEntry is one row of the append-only status transition audit log.
type HistoryEntry struct {
	ID              int64           `json:"id"`
	SessionName     string          `json:"sessionName"`
	Status          Status          `json:"status"`
	AttentionReason AttentionReason `json:"attentionReason,omitempty"`
	Event           string          `json:"event"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Provider identifies which API credentials an environment carries.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
)

// Environment is a named bundle of variables injected into a session's shell.
type Environment struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Provider  Provider          `json:"provider"`
	IsDefault bool              `json:"isDefault"`
	Variables map[string]string `json:"variables"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
