// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// FakeReplayBuffer writes clip files the way a recording application does:
// a generic "Replay <timestamp>.mkv" in its output directory.
type FakeReplayBuffer struct {
	OutputDir string
	MaxClip   time.Duration

	mu       sync.Mutex
	active   bool
	saves    int
	restarts int
}

// NewFakeReplayBuffer creates an active buffer writing into outputDir.
func NewFakeReplayBuffer(outputDir string) *FakeReplayBuffer {
	return &FakeReplayBuffer{OutputDir: outputDir, MaxClip: 5 * time.Minute, active: true}
}

// Save writes a small clip file and returns its path.
func (b *FakeReplayBuffer) Save(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return "", errors.New("replay buffer not running")
	}
	b.saves++
	if err := os.MkdirAll(b.OutputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(b.OutputDir, fmt.Sprintf("Replay %s-%d.mkv", time.Now().Format("2006-01-02 15-04-05"), b.saves))
	if err := os.WriteFile(path, []byte("fake matroska payload"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Restart records a buffer restart.
func (b *FakeReplayBuffer) Restart(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restarts++
	return nil
}

// MaxClipLength returns the configured replay length.
func (b *FakeReplayBuffer) MaxClipLength(ctx context.Context) (time.Duration, error) {
	return b.MaxClip, nil
}

// IsActive reports whether the buffer is recording.
func (b *FakeReplayBuffer) IsActive(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SetActive starts or stops the buffer.
func (b *FakeReplayBuffer) SetActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = active
}

// Restarts returns how many times the buffer was restarted.
func (b *FakeReplayBuffer) Restarts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restarts
}

// FakeDesktop is a scripted foreground window and scene source.
type FakeDesktop struct {
	mu    sync.Mutex
	exe   string
	scene string
}

// NewFakeDesktop creates a desktop focused on exe.
func NewFakeDesktop(exe, scene string) *FakeDesktop {
	return &FakeDesktop{exe: exe, scene: scene}
}

// Focus switches the foreground executable.
func (d *FakeDesktop) Focus(exe string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exe = exe
}

// Foreground returns the focused window.
func (d *FakeDesktop) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.ForegroundWindow{PID: 1, ExecutablePath: d.exe}, nil
}

// CurrentScene returns the active scene.
func (d *FakeDesktop) CurrentScene(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scene, nil
}

// Ensure fakes implement the collaborator interfaces.
var (
	_ domain.BufferController = (*FakeReplayBuffer)(nil)
	_ domain.WindowInspector  = (*FakeDesktop)(nil)
	_ domain.SceneProvider    = (*FakeDesktop)(nil)
)
