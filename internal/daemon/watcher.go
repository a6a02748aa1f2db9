// Package daemon implements the long-running replay watcher: dwell sampling,
// save trigger dispatch and the buffer restart schedule.
package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/usecase"
)

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	SamplingInterval     time.Duration // How often to sample the foreground process
	RestartCheckInterval time.Duration // How often to advance the restart schedule
	HeartbeatInterval    time.Duration // How often to update heartbeat
	TrackDwell           bool          // Whether any configured mode needs dwell sampling
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		SamplingInterval:     time.Second,
		RestartCheckInterval: time.Second,
		HeartbeatInterval:    30 * time.Second,
		TrackDwell:           true,
	}
}

// TriggerSource delivers save triggers and reload requests from the boundary
// layer (signals, hotkeys, CLI).
type TriggerSource interface {
	Triggers() <-chan domain.SaveTrigger
	Reloads() <-chan struct{}
	Close()
}

// Saver runs one save attempt.
type Saver interface {
	Save(ctx context.Context, trigger domain.SaveTrigger) (*domain.SaveResult, error)
}

// Watcher is the main daemon loop. It owns every timer; saves and restart
// checks run on their own goroutines so a slow save or a hung restart
// command never stalls triggers, sampling or the heartbeat.
type Watcher struct {
	config    WatcherConfig
	saver     Saver
	resolver  *usecase.ModeResolver
	scheduler *RestartScheduler
	buffer    domain.BufferController
	store     domain.StateStore
	triggers  TriggerSource
	reload    func(ctx context.Context) error
	daemon    domain.DaemonInfo
	logger    *zap.Logger
	now       func() time.Time

	workers  sync.WaitGroup
	checking atomic.Bool

	// last observed buffer activity, for spotting restarts done outside the daemon
	bufferSeen   bool
	bufferActive bool
}

// NewWatcher creates a new watcher daemon. store and reload may be nil.
func NewWatcher(
	config WatcherConfig,
	saver Saver,
	resolver *usecase.ModeResolver,
	scheduler *RestartScheduler,
	buffer domain.BufferController,
	store domain.StateStore,
	triggers TriggerSource,
	reload func(ctx context.Context) error,
	daemon domain.DaemonInfo,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:    config,
		saver:     saver,
		resolver:  resolver,
		scheduler: scheduler,
		buffer:    buffer,
		store:     store,
		triggers:  triggers,
		reload:    reload,
		daemon:    daemon,
		logger:    logger,
		now:       time.Now,
	}
}

// Run starts the watcher daemon loop.
// This blocks until context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.store != nil {
		if err := w.store.RegisterDaemon(w.daemon); err != nil {
			w.logger.Error("failed to register daemon", zap.Error(err))
			return err
		}
		defer func() {
			if err := w.store.ClearDaemon(); err != nil {
				w.logger.Warn("failed to clear daemon registration", zap.Error(err))
			}
		}()
	}

	w.logger.Info("replay watcher started",
		zap.Int("pid", w.daemon.PID),
		zap.Bool("track_dwell", w.config.TrackDwell))

	sampleTicker := time.NewTicker(w.config.SamplingInterval)
	restartTicker := time.NewTicker(w.config.RestartCheckInterval)
	heartbeatTicker := time.NewTicker(w.config.HeartbeatInterval)

	defer func() {
		sampleTicker.Stop()
		restartTicker.Stop()
		heartbeatTicker.Stop()
		w.triggers.Close()
		w.scheduler.Stop()
		w.workers.Wait()
		w.persistSchedule()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("replay watcher stopping")
			return ctx.Err()

		case trigger, ok := <-w.triggers.Triggers():
			if !ok {
				w.logger.Info("trigger source closed, stopping")
				return nil
			}
			w.dispatchSave(ctx, trigger)

		case <-w.triggers.Reloads():
			w.runReload(ctx)

		case <-sampleTicker.C:
			w.observeBuffer(ctx)

		case <-restartTicker.C:
			w.checkRestart(ctx)

		case <-w.scheduler.Wake():
			w.checkRestart(ctx)

		case <-heartbeatTicker.C:
			if w.store != nil {
				if err := w.store.UpdateHeartbeat(); err != nil {
					w.logger.Warn("failed to update heartbeat", zap.Error(err))
				}
			}
		}
	}
}

// dispatchSave runs the save outside the loop. The save gate drops
// overlapping triggers, so no queue builds up here.
func (w *Watcher) dispatchSave(ctx context.Context, trigger domain.SaveTrigger) {
	w.workers.Add(1)
	go func() {
		defer w.workers.Done()
		if _, err := w.saver.Save(ctx, trigger); err != nil && !errors.Is(err, usecase.ErrSaveInProgress) {
			w.logger.Debug("save attempt finished with error", zap.Error(err))
		}
	}()
}

// observeBuffer samples buffer activity once per sampling interval. A buffer
// that comes back after being seen inactive was restarted by hand, which
// resets the restart schedule.
func (w *Watcher) observeBuffer(ctx context.Context) {
	if w.scheduler.Restarting() {
		return
	}
	active := w.buffer.IsActive(ctx)
	if w.bufferSeen && !w.bufferActive && active {
		w.logger.Info("replay buffer became active")
		w.scheduler.ResetDue(w.now())
		w.persistSchedule()
	}
	w.bufferSeen, w.bufferActive = true, active

	if active {
		w.sample(ctx)
	}
}

// sample credits one sampling interval to the foreground process.
func (w *Watcher) sample(ctx context.Context) {
	if !w.config.TrackDwell || w.resolver == nil {
		return
	}
	w.resolver.Sample(ctx, w.config.SamplingInterval, w.now())
}

// checkRestart advances the restart schedule off the loop, one check at a
// time, and persists it on change.
func (w *Watcher) checkRestart(ctx context.Context) {
	if !w.checking.CompareAndSwap(false, true) {
		return
	}
	w.workers.Add(1)
	go func() {
		defer w.workers.Done()
		defer w.checking.Store(false)

		before := w.scheduler.Snapshot()
		if _, err := w.scheduler.Check(ctx, w.now()); err != nil {
			w.logger.Debug("restart check finished with error", zap.Error(err))
		}
		if after := w.scheduler.Snapshot(); after != before {
			w.persistSchedule()
		}
	}()
}

func (w *Watcher) persistSchedule() {
	if w.store == nil {
		return
	}
	if err := w.store.SetRestartState(w.scheduler.Snapshot()); err != nil {
		w.logger.Warn("failed to persist restart schedule", zap.Error(err))
	}
}

func (w *Watcher) runReload(ctx context.Context) {
	if w.reload == nil {
		return
	}
	if err := w.reload(ctx); err != nil {
		w.logger.Error("reload failed", zap.Error(err))
		return
	}
	w.logger.Info("configuration reloaded")
}
