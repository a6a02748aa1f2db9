package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/usecase"
)

// fakeTriggers implements TriggerSource for testing
type fakeTriggers struct {
	triggers chan domain.SaveTrigger
	reloads  chan struct{}
	once     sync.Once
	closed   chan struct{}
}

func newFakeTriggers() *fakeTriggers {
	return &fakeTriggers{
		triggers: make(chan domain.SaveTrigger, 4),
		reloads:  make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTriggers) Triggers() <-chan domain.SaveTrigger { return f.triggers }
func (f *fakeTriggers) Reloads() <-chan struct{}            { return f.reloads }
func (f *fakeTriggers) Close()                              { f.once.Do(func() { close(f.closed) }) }

// recordingSaver implements Saver for testing
type recordingSaver struct {
	mu       sync.Mutex
	triggers []domain.SaveTrigger
	done     chan struct{}
}

func (r *recordingSaver) Save(ctx context.Context, trigger domain.SaveTrigger) (*domain.SaveResult, error) {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.done <- struct{}{}
	return &domain.SaveResult{}, nil
}

// staticInspector implements domain.WindowInspector for testing
type staticInspector struct {
	path string
}

func (s *staticInspector) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	return domain.ForegroundWindow{PID: 1, ExecutablePath: s.path}, nil
}

func fastWatcherConfig() WatcherConfig {
	return WatcherConfig{
		SamplingInterval:     5 * time.Millisecond,
		RestartCheckInterval: 5 * time.Millisecond,
		HeartbeatInterval:    5 * time.Millisecond,
		TrackDwell:           true,
	}
}

func TestWatcher_DispatchesSaveAndCleansUp(t *testing.T) {
	buffer := &mockBuffer{maxClip: time.Minute}
	scheduler, _, _ := newTestScheduler(buffer, &mockInput{})
	resolver := usecase.NewModeResolver(&staticInspector{path: "/usr/bin/game"}, nil, nil, usecase.TieBreakMostRecent, zap.NewNop())
	saver := &recordingSaver{done: make(chan struct{}, 1)}
	store := &mockStore{}
	triggers := newFakeTriggers()

	w := NewWatcher(fastWatcherConfig(), saver, resolver, scheduler, buffer, store, triggers, nil,
		domain.DaemonInfo{PID: 99, StartedAt: time.Now()}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	triggers.triggers <- domain.SaveTrigger{Source: "hotkey:primary"}

	select {
	case <-saver.done:
	case <-time.After(2 * time.Second):
		t.Fatal("save was not dispatched")
	}

	// Let a few sampling ticks land.
	require.Eventually(t, func() bool { return resolver.Tally().Len() > 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	saver.mu.Lock()
	assert.Equal(t, "hotkey:primary", saver.triggers[0].Source)
	saver.mu.Unlock()
	assert.True(t, store.cleared, "daemon registration cleared on exit")

	select {
	case <-triggers.closed:
	default:
		t.Fatal("trigger source was not closed")
	}
	assert.False(t, scheduler.RequestRestart(), "scheduler stopped")
}

func TestWatcher_SkipsSamplingWhileBufferInactive(t *testing.T) {
	buffer := &mockBuffer{inactive: true}
	scheduler, _, _ := newTestScheduler(buffer, &mockInput{})
	resolver := usecase.NewModeResolver(&staticInspector{path: "/usr/bin/game"}, nil, nil, usecase.TieBreakMostRecent, zap.NewNop())
	triggers := newFakeTriggers()

	w := NewWatcher(fastWatcherConfig(), &recordingSaver{done: make(chan struct{}, 1)}, resolver, scheduler, buffer, nil, triggers, nil,
		domain.DaemonInfo{PID: 1}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	assert.Equal(t, 0, resolver.Tally().Len())
}

func TestWatcher_RunsReloadAndPersistsSchedule(t *testing.T) {
	buffer := &mockBuffer{maxClip: time.Minute}
	scheduler, _, _ := newTestScheduler(buffer, &mockInput{})
	triggers := newFakeTriggers()
	store := &mockStore{}

	reloaded := make(chan struct{}, 1)
	reload := func(ctx context.Context) error {
		scheduler.Configure(time.Hour, time.Now())
		reloaded <- struct{}{}
		return nil
	}

	cfg := fastWatcherConfig()
	cfg.TrackDwell = false
	w := NewWatcher(cfg, &recordingSaver{done: make(chan struct{}, 1)}, nil, scheduler, buffer, store, triggers, reload,
		domain.DaemonInfo{PID: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	triggers.reloads <- struct{}{}
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not run")
	}

	cancel()
	<-errCh
	assert.Equal(t, time.Hour, store.savedRestartState().Interval, "schedule persisted on shutdown")
}

func TestWatcher_StopsWhenTriggerSourceCloses(t *testing.T) {
	buffer := &mockBuffer{}
	scheduler, _, _ := newTestScheduler(buffer, &mockInput{})
	triggers := newFakeTriggers()
	close(triggers.triggers)

	w := NewWatcher(fastWatcherConfig(), &recordingSaver{done: make(chan struct{}, 1)}, nil, scheduler, buffer, nil, triggers, nil,
		domain.DaemonInfo{PID: 1}, zap.NewNop())

	err := w.Run(context.Background())
	assert.NoError(t, err)
}

func TestWatcher_HungRestartDoesNotBlockSaves(t *testing.T) {
	buffer := &mockBuffer{maxClip: time.Minute, restartEnter: make(chan struct{}), restartBlock: make(chan struct{})}
	scheduler, _, _ := newTestScheduler(buffer, &mockInput{})
	scheduler.Configure(time.Millisecond, time.Now())
	saver := &recordingSaver{done: make(chan struct{}, 1)}
	triggers := newFakeTriggers()

	cfg := fastWatcherConfig()
	cfg.TrackDwell = false
	w := NewWatcher(cfg, saver, nil, scheduler, buffer, nil, triggers, nil, domain.DaemonInfo{PID: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	enter := buffer.restartEnter
	select {
	case <-enter:
	case <-time.After(2 * time.Second):
		t.Fatal("restart never started")
	}

	triggers.triggers <- domain.SaveTrigger{Source: "hotkey:primary"}
	select {
	case <-saver.done:
	case <-time.After(2 * time.Second):
		t.Fatal("save stalled behind the restart command")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, 1, buffer.Restarts(), "one restart check at a time")
}

func TestWatcher_ExternalRestartResetsSchedule(t *testing.T) {
	buffer := &mockBuffer{inactive: true, maxClip: time.Minute}
	scheduler, _, _ := newTestScheduler(buffer, &mockInput{})
	resets := make(chan struct{}, 1)
	scheduler.OnRestart(func() {
		select {
		case resets <- struct{}{}:
		default:
		}
	})
	armedAt := time.Now()
	scheduler.Configure(time.Hour, armedAt)
	store := &mockStore{}

	w := NewWatcher(fastWatcherConfig(), &recordingSaver{done: make(chan struct{}, 1)}, nil, scheduler, buffer, store, newFakeTriggers(), nil,
		domain.DaemonInfo{PID: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Let the watcher see the buffer down first.
	time.Sleep(30 * time.Millisecond)
	buffer.setInactive(false)

	select {
	case <-resets:
	case <-time.After(2 * time.Second):
		t.Fatal("buffer coming back did not reset the schedule")
	}
	cancel()
	<-errCh

	assert.True(t, scheduler.Snapshot().DueAt.After(armedAt.Add(time.Hour)), "due time counts from the manual restart")
	assert.Equal(t, 0, buffer.Restarts())
	count, _ := scheduler.Stats()
	assert.Equal(t, 1, count)
}
