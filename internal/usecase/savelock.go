package usecase

import (
	"sync"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// SaveLock is a single-slot, non-blocking lock. Contenders are dropped, not queued.
type SaveLock struct {
	mu    sync.Mutex
	held  bool
	hooks []func()
}

// NewSaveLock creates an unlocked gate.
func NewSaveLock() *SaveLock {
	return &SaveLock{}
}

// TryAcquire takes the lock if it is free.
func (l *SaveLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	return true
}

// Release frees the lock and runs the release hooks outside the critical section.
// Hooks must not block.
func (l *SaveLock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	hooks := append([]func(){}, l.hooks...)
	l.mu.Unlock()

	for _, h := range hooks {
		h()
	}
}

// Held reports whether the lock is currently taken.
func (l *SaveLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// OnRelease registers a hook run after every release.
func (l *SaveLock) OnRelease(hook func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// Ensure SaveLock implements domain.SaveGate.
var _ domain.SaveGate = (*SaveLock)(nil)
