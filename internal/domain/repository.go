package domain

import (
	"context"
	"os"
	"time"
)

// WindowInspector yields the focused window and its executable.
// Implementation: xdotool for the window, gopsutil for the executable path.
type WindowInspector interface {
	// Foreground returns the currently focused window.
	Foreground(ctx context.Context) (ForegroundWindow, error)
}

// InputMonitor reports global keyboard/mouse activity.
type InputMonitor interface {
	// LastActivity returns the timestamp of the last input event.
	// A zero time means no activity is known.
	LastActivity(ctx context.Context) (InputActivitySample, error)
}

// SceneProvider yields the active scene of the recording application.
type SceneProvider interface {
	CurrentScene(ctx context.Context) (string, error)
}

// BufferController is the save/restart/query surface of the replay buffer.
type BufferController interface {
	// Save commits the buffer to disk and returns the written file path.
	Save(ctx context.Context) (string, error)

	// Restart stops and starts the buffer.
	Restart(ctx context.Context) error

	// MaxClipLength returns the configured maximum replay length.
	MaxClipLength(ctx context.Context) (time.Duration, error)

	// IsActive reports whether the buffer is currently recording.
	IsActive(ctx context.Context) bool
}

// FileSystemManager handles filesystem operations.
type FileSystemManager interface {
	// Exists checks if a path exists.
	Exists(path string) bool

	// Move renames src to dst, creating dst's directory if needed.
	Move(src, dst string) error

	// Size returns the file size in bytes.
	Size(path string) (int64, error)

	// ExpandHome expands ~ to the user's home directory.
	ExpandHome(path string) string
}

// Notifier reports save outcomes to the user.
type Notifier interface {
	NotifySuccess(ctx context.Context, result SaveResult) error
	NotifyFailure(ctx context.Context, reason error) error
}

// SaveGate is the single-slot save lock shared by the save orchestrator
// and the restart scheduler.
type SaveGate interface {
	// TryAcquire takes the lock if it is free. It never blocks.
	TryAcquire() bool

	// Release frees the lock and runs release hooks.
	Release()

	// Held reports whether the lock is currently taken.
	Held() bool
}

// RestartRequester accepts post-save restart handoffs.
type RestartRequester interface {
	// RequestRestart marks a restart pending. Returns false if one already is.
	RequestRestart() bool
}

// StateStore provides persistent storage for rules, schedule and history.
// Implementation: SQLCipher encrypted SQLite database.
type StateStore interface {
	// CustomNames returns the raw "PATH > NAME" rule strings in order.
	CustomNames() ([]string, error)

	// SetCustomNames replaces the stored rule list.
	SetCustomNames(rules []string) error

	// RestartState returns the persisted schedule (zero value if none).
	RestartState() (RestartScheduleState, error)

	// SetRestartState persists the schedule.
	SetRestartState(state RestartScheduleState) error

	// AddClip appends a saved clip to the history.
	AddClip(rec ClipRecord) error

	// RecentClips returns the latest clips, newest first.
	RecentClips(limit int) ([]ClipRecord, error)

	// RegisterDaemon records the running daemon for the CLI.
	RegisterDaemon(info DaemonInfo) error

	// UpdateHeartbeat updates the daemon liveness timestamp.
	UpdateHeartbeat() error

	// Daemon returns the registered daemon, or nil if none.
	Daemon() (*DaemonInfo, error)

	// ClearDaemon removes the daemon registration.
	ClearDaemon() error

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// Executable returns the executable path of a PID.
	Executable(pid int) (string, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Signal sends sig to pid.
	Signal(pid int, sig os.Signal) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}
