// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ClipNamingMode selects how the raw identifier for a clip name is obtained.
type ClipNamingMode string

const (
	ModeCurrentProcess      ClipNamingMode = "current_process"
	ModeMostRecordedProcess ClipNamingMode = "most_recorded_process"
	ModeCurrentScene        ClipNamingMode = "current_scene"
)

// ParseClipNamingMode accepts the lower-case config spelling as well as the
// upper-case constant spelling (CURRENT_PROCESS, ...).
func ParseClipNamingMode(s string) (ClipNamingMode, error) {
	switch ClipNamingMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCurrentProcess:
		return ModeCurrentProcess, nil
	case ModeMostRecordedProcess:
		return ModeMostRecordedProcess, nil
	case ModeCurrentScene:
		return ModeCurrentScene, nil
	}
	return "", fmt.Errorf("unknown clip naming mode %q", s)
}

// TracksDwell reports whether the mode needs foreground sampling.
func (m ClipNamingMode) TracksDwell() bool {
	return m == ModeMostRecordedProcess
}

// CustomNameRule maps an executable/directory path or scene name to a clip name.
type CustomNameRule struct {
	MatchPath   string
	DisplayName string
}

// String renders the rule in its persisted "PATH > NAME" form.
func (r CustomNameRule) String() string {
	return r.MatchPath + " > " + r.DisplayName
}

// ClipNameContext is produced per save attempt and never persisted as-is.
type ClipNameContext struct {
	ID            string
	Mode          ClipNamingMode
	RawIdentifier string
	ResolvedName  string
	Timestamp     time.Time
}

// RestartScheduleState is the persisted part of the restart scheduler.
// Interval == 0 means the scheduler is idle until reconfigured.
type RestartScheduleState struct {
	Interval time.Duration `json:"interval"`
	DueAt    time.Time     `json:"due_at"`
	Pending  bool          `json:"pending"`
}

// InputActivitySample is the last observed keyboard/mouse event.
type InputActivitySample struct {
	LastActivity time.Time
}

// ForegroundWindow describes the focused window at a point in time.
type ForegroundWindow struct {
	PID            int
	ExecutablePath string
	WindowTitle    string
}

// SaveTrigger is one request to save the replay buffer.
type SaveTrigger struct {
	Source     string          // "hotkey:primary", "hotkey:secondary", "cli", ...
	ForcedMode *ClipNamingMode // Overrides the configured mode when set
}

// SaveResult captures what happened during a successful save.
type SaveResult struct {
	Context   ClipNameContext
	Path      string
	SizeBytes int64
	Duration  time.Duration
}

// ClipRecord is one entry of the saved clip history.
type ClipRecord struct {
	ID      string
	Name    string
	Path    string
	Mode    ClipNamingMode
	SavedAt time.Time
}

// DaemonInfo is the registration of the running daemon.
type DaemonInfo struct {
	PID           int
	StartedAt     time.Time
	LastHeartbeat time.Time
	AppVersion    string
}
