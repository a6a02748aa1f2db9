package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// mockInspector implements domain.WindowInspector for testing
type mockInspector struct {
	mu      sync.Mutex
	windows []domain.ForegroundWindow // returned in order, last one repeats
	err     error
	calls   int
}

func (m *mockInspector) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.ForegroundWindow{}, m.err
	}
	if len(m.windows) == 0 {
		return domain.ForegroundWindow{}, errors.New("no window")
	}
	i := m.calls
	if i >= len(m.windows) {
		i = len(m.windows) - 1
	}
	m.calls++
	return m.windows[i], nil
}

// mockScenes implements domain.SceneProvider for testing
type mockScenes struct {
	scene string
	err   error
}

func (m *mockScenes) CurrentScene(ctx context.Context) (string, error) {
	return m.scene, m.err
}

// mockBuffer implements domain.BufferController for testing
type mockBuffer struct {
	mu         sync.Mutex
	inactive   bool
	savePath   string
	saveErr    error
	saveCalls  int
	saveBlock  chan struct{} // when set, Save waits until closed
	saveEnter  chan struct{} // when set, closed once Save starts
	restarts   int
	restartErr error
	maxClip    time.Duration
}

func (m *mockBuffer) Save(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.saveCalls++
	enter, block := m.saveEnter, m.saveBlock
	m.mu.Unlock()

	if enter != nil {
		close(enter)
	}
	if block != nil {
		<-block
	}
	if m.saveErr != nil {
		return "", m.saveErr
	}
	return m.savePath, nil
}

func (m *mockBuffer) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	return m.restartErr
}

func (m *mockBuffer) MaxClipLength(ctx context.Context) (time.Duration, error) {
	return m.maxClip, nil
}

func (m *mockBuffer) IsActive(ctx context.Context) bool {
	return !m.inactive
}

func (m *mockBuffer) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// mockFileSystemManager implements domain.FileSystemManager for testing
type mockFileSystemManager struct {
	existingPaths map[string]bool
	moveErr       error
	moves         [][2]string
}

func (m *mockFileSystemManager) Exists(path string) bool {
	return m.existingPaths[path]
}

func (m *mockFileSystemManager) Move(src, dst string) error {
	if m.moveErr != nil {
		return m.moveErr
	}
	m.moves = append(m.moves, [2]string{src, dst})
	return nil
}

func (m *mockFileSystemManager) Size(path string) (int64, error) {
	return 1024, nil
}

func (m *mockFileSystemManager) ExpandHome(path string) string {
	return path // No expansion in tests
}

// mockNotifier implements domain.Notifier for testing
type mockNotifier struct {
	mu        sync.Mutex
	successes []domain.SaveResult
	failures  []error
}

func (m *mockNotifier) NotifySuccess(ctx context.Context, result domain.SaveResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, result)
	return nil
}

func (m *mockNotifier) NotifyFailure(ctx context.Context, reason error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
	return nil
}

// mockRestarter implements domain.RestartRequester for testing
type mockRestarter struct {
	pending  bool
	requests int
}

func (m *mockRestarter) RequestRestart() bool {
	m.requests++
	if m.pending {
		return false
	}
	m.pending = true
	return true
}

// mockHistory implements the clip history part of domain.StateStore for testing
type mockHistory struct {
	domain.StateStore
	clips []domain.ClipRecord
}

func (m *mockHistory) AddClip(rec domain.ClipRecord) error {
	m.clips = append(m.clips, rec)
	return nil
}

var errNoDisplay = errors.New("cannot open display")
