package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// RestartState is the position of the restart scheduler's state machine.
type RestartState string

const (
	StateIdle       RestartState = "idle"
	StateWaiting    RestartState = "waiting"
	StateDue        RestartState = "due"
	StateCheckInput RestartState = "check_input"
	StateRestart    RestartState = "restart"
	StateDelayed    RestartState = "delayed"
)

const (
	// MaxRestartInterval is the upper bound of the configurable interval.
	MaxRestartInterval = 2 * time.Hour
	// DefaultMaxClipLength is assumed when the buffer cannot report its own.
	DefaultMaxClipLength = 5 * time.Minute
	// DefaultRestartTimeout bounds a single buffer restart command.
	DefaultRestartTimeout = 30 * time.Second
)

var (
	// ErrRestartInProgress is returned when a manual restart overlaps another restart.
	ErrRestartInProgress = errors.New("a buffer restart is already in progress")
	// ErrSaveInFlight is returned when a manual restart would cut into a save.
	ErrSaveInFlight = errors.New("a save is in progress, restart not started")
)

// RestartScheduler periodically restarts the replay buffer without cutting
// into an in-flight or imminent save.
//
// Transitions: idle -> waiting -> due -> check_input -> restart | delayed,
// delayed -> check_input after the max clip length. A restart only starts
// while the save gate is free; if a save holds it the restart stays pending
// until the gate is released. The restart never takes the gate itself, so
// saves are never refused because of it.
type RestartScheduler struct {
	buffer   domain.BufferController
	input    domain.InputMonitor
	gate     domain.SaveGate
	notifier domain.Notifier
	logger   *zap.Logger
	timeout  time.Duration

	mu           sync.Mutex
	state        RestartState
	interval     time.Duration
	dueAt        time.Time
	recheckAt    time.Time
	pending      bool
	requested    bool // pending restart came from a post-save handoff
	restarting   bool
	stopped      bool
	onRestart    []func()
	wake         chan struct{}
	lastRestart  time.Time
	restartCount int
}

// NewRestartScheduler creates an idle scheduler. notifier may be nil.
func NewRestartScheduler(
	buffer domain.BufferController,
	input domain.InputMonitor,
	gate domain.SaveGate,
	notifier domain.Notifier,
	logger *zap.Logger,
) *RestartScheduler {
	return &RestartScheduler{
		buffer:   buffer,
		input:    input,
		gate:     gate,
		notifier: notifier,
		logger:   logger,
		timeout:  DefaultRestartTimeout,
		state:    StateIdle,
		wake:     make(chan struct{}, 1),
	}
}

// SetRestartTimeout bounds each buffer restart command. Non-positive values
// restore the default.
func (s *RestartScheduler) SetRestartTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultRestartTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// ValidateInterval checks the configurable interval range.
func ValidateInterval(interval time.Duration) error {
	if interval < 0 || interval > MaxRestartInterval {
		return fmt.Errorf("restart interval %s out of range [0, %s]", interval, MaxRestartInterval)
	}
	return nil
}

// Configure sets the interval. Zero disables the scheduler; a positive value
// re-arms it from now.
func (s *RestartScheduler) Configure(interval time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = interval
	s.recheckAt = time.Time{}
	if interval <= 0 {
		s.interval = 0
		s.state = StateIdle
		s.dueAt = time.Time{}
		s.pending = false
		s.requested = false
		s.logger.Info("buffer restart scheduler disabled")
		return
	}
	s.state = StateWaiting
	s.dueAt = now.Add(interval)
	s.logger.Info("buffer restart scheduled",
		zap.Duration("interval", interval),
		zap.Time("due_at", s.dueAt))
}

// Restore re-applies a persisted schedule. A due time from a different
// interval, or one already in the past, is ignored in favour of a fresh arm.
func (s *RestartScheduler) Restore(state domain.RestartScheduleState, interval time.Duration, now time.Time) {
	s.Configure(interval, now)
	if interval <= 0 || state.Interval != interval || !state.DueAt.After(now) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dueAt = state.DueAt
	s.logger.Info("restored buffer restart schedule", zap.Time("due_at", s.dueAt))
}

// ResetDue re-arms the timer after a restart performed outside the scheduler
// and runs the restart hooks, since the buffer window started over.
func (s *RestartScheduler) ResetDue(now time.Time) {
	s.mu.Lock()
	s.pending = false
	s.requested = false
	s.lastRestart = now
	s.restartCount++
	s.rearmLocked(now)
	hooks := append([]func(){}, s.onRestart...)
	s.mu.Unlock()

	s.logger.Info("buffer restarted externally, restart schedule reset")
	for _, h := range hooks {
		h()
	}
}

// RestartNow restarts the buffer on request and resets the schedule. It
// refuses to cut into a running save or to overlap another restart.
func (s *RestartScheduler) RestartNow(ctx context.Context, now time.Time) error {
	if s.gate.Held() {
		return ErrSaveInFlight
	}
	s.mu.Lock()
	if s.restarting {
		s.mu.Unlock()
		return ErrRestartInProgress
	}
	s.restarting = true
	timeout := s.timeout
	s.mu.Unlock()

	err := s.runRestart(ctx, timeout)

	s.mu.Lock()
	s.restarting = false
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to restart replay buffer: %w", err)
	}
	s.ResetDue(now)
	return nil
}

// Restarting reports whether a buffer restart command is running.
func (s *RestartScheduler) Restarting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarting
}

// OnRestart registers a hook run after each successful restart.
func (s *RestartScheduler) OnRestart(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRestart = append(s.onRestart, hook)
}

// RequestRestart marks a restart pending (post-save handoff). It returns
// false if a restart is already pending. Requested restarts skip the input
// check since the save trigger itself is input activity.
func (s *RestartScheduler) RequestRestart() bool {
	s.mu.Lock()
	// A restart already in flight starts the fresh window the request asks for.
	if s.pending || s.stopped || s.restarting {
		s.mu.Unlock()
		return false
	}
	s.pending = true
	s.requested = true
	s.mu.Unlock()

	s.signal()
	return true
}

// OnSaveReleased is the save gate release hook. It never blocks.
func (s *RestartScheduler) OnSaveReleased() {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending {
		s.signal()
	}
}

// Wake delivers a signal whenever a pending restart should be retried.
// The channel holds at most one signal, so bursts collapse.
func (s *RestartScheduler) Wake() <-chan struct{} {
	return s.wake
}

func (s *RestartScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop makes every later Check a no-op. Safe to call more than once.
func (s *RestartScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// State returns the current state.
func (s *RestartScheduler) State() RestartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the persistable schedule.
func (s *RestartScheduler) Snapshot() domain.RestartScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RestartScheduleState{
		Interval: s.interval,
		DueAt:    s.dueAt,
		Pending:  s.pending,
	}
}

// NextCheck returns when the scheduler next needs attention (zero if idle).
func (s *RestartScheduler) NextCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateWaiting:
		return s.dueAt
	case StateDelayed:
		return s.recheckAt
	}
	return time.Time{}
}

// Check advances the state machine to now. It returns the resulting state
// and the restart error, if a restart was attempted and failed.
func (s *RestartScheduler) Check(ctx context.Context, now time.Time) (RestartState, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return StateIdle, nil
	}
	if s.restarting {
		s.mu.Unlock()
		return StateRestart, nil
	}

	needInput := false
	switch {
	case s.pending:
		// Retry a blocked or requested restart.
		needInput = !s.requested
	case s.state == StateWaiting && !now.Before(s.dueAt):
		s.state = StateDue
		needInput = true
	case s.state == StateDelayed && !now.Before(s.recheckAt):
		needInput = true
	default:
		state := s.state
		s.mu.Unlock()
		return state, nil
	}
	if needInput {
		s.state = StateCheckInput
	}
	s.mu.Unlock()

	if needInput {
		if delay, busy := s.inputActive(ctx, now); busy {
			s.mu.Lock()
			s.state = StateDelayed
			s.recheckAt = now.Add(delay)
			s.pending = false
			s.mu.Unlock()
			s.logger.Info("buffer restart delayed, recent input activity",
				zap.Time("recheck_at", now.Add(delay)))
			return StateDelayed, nil
		}
	}

	return s.restart(ctx, now)
}

// inputActive reports whether input happened within the max clip length
// preceding now, and that length.
func (s *RestartScheduler) inputActive(ctx context.Context, now time.Time) (time.Duration, bool) {
	maxClip, err := s.buffer.MaxClipLength(ctx)
	if err != nil || maxClip <= 0 {
		if err != nil {
			s.logger.Warn("failed to query max clip length, using default", zap.Error(err))
		}
		maxClip = DefaultMaxClipLength
	}

	sample, err := s.input.LastActivity(ctx)
	if err != nil {
		s.logger.Warn("failed to query input activity, assuming none", zap.Error(err))
		return maxClip, false
	}
	if sample.LastActivity.IsZero() {
		return maxClip, false
	}
	return maxClip, now.Sub(sample.LastActivity) < maxClip
}

func (s *RestartScheduler) restart(ctx context.Context, now time.Time) (RestartState, error) {
	// Held takes the gate's own lock; never call it under s.mu.
	held := s.gate.Held()

	s.mu.Lock()
	if held {
		s.pending = true
		s.state = StateDue
		s.mu.Unlock()
		s.logger.Info("buffer restart pending, save in progress")
		return StateDue, nil
	}
	if s.restarting {
		s.mu.Unlock()
		return StateRestart, nil
	}
	s.state = StateRestart
	s.restarting = true
	timeout := s.timeout
	s.mu.Unlock()

	restarted := false
	var err error
	if s.buffer.IsActive(ctx) {
		err = s.runRestart(ctx, timeout)
		restarted = err == nil
	} else {
		s.logger.Debug("buffer not active, skipping restart")
	}

	s.mu.Lock()
	s.restarting = false
	s.pending = false
	s.requested = false
	if restarted {
		s.lastRestart = now
		s.restartCount++
	}
	// Re-arm even on failure so a broken buffer cannot cause a restart storm.
	s.rearmLocked(now)
	state := s.state
	hooks := append([]func(){}, s.onRestart...)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("buffer restart failed", zap.Error(err))
		if s.notifier != nil {
			if nerr := s.notifier.NotifyFailure(ctx, fmt.Errorf("buffer restart failed: %w", err)); nerr != nil {
				s.logger.Warn("failure notification failed", zap.Error(nerr))
			}
		}
		return state, err
	}
	if !restarted {
		return state, nil
	}

	s.logger.Info("buffer restarted")
	for _, h := range hooks {
		h()
	}
	return state, nil
}

func (s *RestartScheduler) runRestart(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.buffer.Restart(ctx)
}

func (s *RestartScheduler) rearmLocked(now time.Time) {
	s.recheckAt = time.Time{}
	if s.interval <= 0 {
		s.state = StateIdle
		s.dueAt = time.Time{}
		return
	}
	s.state = StateWaiting
	s.dueAt = now.Add(s.interval)
}

// Stats returns the restart counter and the last restart time.
func (s *RestartScheduler) Stats() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCount, s.lastRestart
}

// Ensure RestartScheduler implements domain.RestartRequester.
var _ domain.RestartRequester = (*RestartScheduler)(nil)
