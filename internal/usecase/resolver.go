package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/naming"
)

// ModeResolver yields the raw identifier fed to the custom name matcher.
type ModeResolver struct {
	inspector domain.WindowInspector
	scenes    domain.SceneProvider
	tally     *DwellTally
	tieBreak  TieBreak
	logger    *zap.Logger
}

// NewModeResolver creates a resolver. scenes may be nil when scene naming is unused.
func NewModeResolver(
	inspector domain.WindowInspector,
	scenes domain.SceneProvider,
	tally *DwellTally,
	tieBreak TieBreak,
	logger *zap.Logger,
) *ModeResolver {
	if tally == nil {
		tally = NewDwellTally()
	}
	return &ModeResolver{
		inspector: inspector,
		scenes:    scenes,
		tally:     tally,
		tieBreak:  tieBreak,
		logger:    logger,
	}
}

// Tally exposes the dwell tally (for status output and tests).
func (r *ModeResolver) Tally() *DwellTally {
	return r.tally
}

// Sample credits d of foreground time to the currently focused executable.
// Errors are logged and dropped; sampling never blocks the caller's loop.
func (r *ModeResolver) Sample(ctx context.Context, d time.Duration, now time.Time) {
	win, err := r.inspector.Foreground(ctx)
	if err != nil {
		r.logger.Debug("foreground sample failed", zap.Error(err))
		return
	}
	r.tally.Record(win.ExecutablePath, d, now)
}

// ResetWindow discards dwell data, e.g. after the buffer was restarted.
func (r *ModeResolver) ResetWindow() {
	r.tally.Reset()
}

// Resolve returns the raw identifier for mode and how to interpret it.
func (r *ModeResolver) Resolve(ctx context.Context, mode domain.ClipNamingMode) (string, naming.CandidateKind, error) {
	switch mode {
	case domain.ModeCurrentScene:
		if r.scenes == nil {
			return "", naming.CandidateScene, fmt.Errorf("no scene provider configured")
		}
		scene, err := r.scenes.CurrentScene(ctx)
		if err != nil {
			return "", naming.CandidateScene, fmt.Errorf("failed to get current scene: %w", err)
		}
		return scene, naming.CandidateScene, nil

	case domain.ModeMostRecordedProcess:
		// Each buffer window is judged on its own.
		entries := r.tally.Take()
		if id, ok := MostDwelled(entries, r.tieBreak); ok {
			r.logger.Debug("resolved most recorded process",
				zap.String("executable", id),
				zap.Duration("dwell", entries[id].Dwell),
				zap.Int("candidates", len(entries)))
			return id, naming.CandidateExecutable, nil
		}
		r.logger.Debug("dwell tally empty, falling back to current process")
		return r.currentProcess(ctx)

	case domain.ModeCurrentProcess:
		return r.currentProcess(ctx)
	}
	return "", naming.CandidateExecutable, fmt.Errorf("unknown clip naming mode %q", mode)
}

func (r *ModeResolver) currentProcess(ctx context.Context) (string, naming.CandidateKind, error) {
	win, err := r.inspector.Foreground(ctx)
	if err != nil {
		return "", naming.CandidateExecutable, fmt.Errorf("failed to inspect foreground window: %w", err)
	}
	return win.ExecutablePath, naming.CandidateExecutable, nil
}
