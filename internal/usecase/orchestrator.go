// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/naming"
)

var (
	// ErrSaveInProgress is returned when a trigger arrives while a save holds the lock.
	ErrSaveInProgress = errors.New("a save is already in progress")
	// ErrBufferInactive is returned when the replay buffer is not recording.
	ErrBufferInactive = errors.New("replay buffer is not active")
)

// OrchestratorConfig holds the save behaviour switches.
type OrchestratorConfig struct {
	DefaultMode      domain.ClipNamingMode
	BasePath         string // empty keeps clips next to the recording
	SortIntoFolders  bool
	RestartAfterSave bool
}

// SaveOrchestrator turns a trigger into a named, placed clip.
type SaveOrchestrator struct {
	config    OrchestratorConfig
	gate      domain.SaveGate
	resolver  *ModeResolver
	buffer    domain.BufferController
	fsManager domain.FileSystemManager
	notifier  domain.Notifier
	restarter domain.RestartRequester
	history   domain.StateStore
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	rules    *naming.RuleSet
	template *naming.Template
}

// NewSaveOrchestrator creates an orchestrator. restarter and history may be nil.
func NewSaveOrchestrator(
	config OrchestratorConfig,
	gate domain.SaveGate,
	resolver *ModeResolver,
	rules *naming.RuleSet,
	template *naming.Template,
	buffer domain.BufferController,
	fs domain.FileSystemManager,
	notifier domain.Notifier,
	restarter domain.RestartRequester,
	history domain.StateStore,
	logger *zap.Logger,
) *SaveOrchestrator {
	if template == nil {
		template, _ = naming.ParseTemplate(naming.DefaultTemplate)
	}
	return &SaveOrchestrator{
		config:    config,
		gate:      gate,
		resolver:  resolver,
		rules:     rules,
		template:  template,
		buffer:    buffer,
		fsManager: fs,
		notifier:  notifier,
		restarter: restarter,
		history:   history,
		logger:    logger,
		now:       time.Now,
	}
}

// SetRules swaps the custom name rules used by subsequent saves.
func (o *SaveOrchestrator) SetRules(rules *naming.RuleSet) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules = rules
}

// SetTemplate validates tpl and uses it for subsequent saves. An invalid
// template is reported and the default template is used instead.
func (o *SaveOrchestrator) SetTemplate(tpl string) error {
	parsed, err := naming.ParseTemplate(tpl)
	if err != nil {
		o.logger.Warn("invalid filename template, using default",
			zap.String("template", tpl),
			zap.String("default", naming.DefaultTemplate),
			zap.Error(err))
		parsed, _ = naming.ParseTemplate(naming.DefaultTemplate)
	}
	o.mu.Lock()
	o.template = parsed
	o.mu.Unlock()
	return err
}

// Save runs one save attempt. At most one save runs at a time; a trigger
// arriving meanwhile is dropped with ErrSaveInProgress.
func (o *SaveOrchestrator) Save(ctx context.Context, trigger domain.SaveTrigger) (*domain.SaveResult, error) {
	if !o.gate.TryAcquire() {
		o.logger.Info("save trigger dropped, save already in progress",
			zap.String("source", trigger.Source))
		return nil, ErrSaveInProgress
	}
	defer o.gate.Release()

	result, err := o.save(ctx, trigger)
	if err != nil {
		o.logger.Error("save failed",
			zap.String("source", trigger.Source),
			zap.Error(err))
		if nerr := o.notifier.NotifyFailure(ctx, err); nerr != nil {
			o.logger.Warn("failure notification failed", zap.Error(nerr))
		}
		return nil, err
	}
	// Each saved clip closes its dwell window.
	o.resolver.ResetWindow()

	if o.config.RestartAfterSave && o.restarter != nil {
		if o.restarter.RequestRestart() {
			o.logger.Info("buffer restart requested after save")
		} else {
			o.logger.Debug("buffer restart already pending")
		}
	}

	if nerr := o.notifier.NotifySuccess(ctx, *result); nerr != nil {
		o.logger.Warn("success notification failed", zap.Error(nerr))
	}
	return result, nil
}

func (o *SaveOrchestrator) save(ctx context.Context, trigger domain.SaveTrigger) (*domain.SaveResult, error) {
	start := o.now()

	if !o.buffer.IsActive(ctx) {
		return nil, ErrBufferInactive
	}

	mode := o.config.DefaultMode
	if trigger.ForcedMode != nil {
		mode = *trigger.ForcedMode
	}

	o.mu.RLock()
	rules, tpl := o.rules, o.template
	o.mu.RUnlock()

	raw, kind, err := o.resolver.Resolve(ctx, mode)
	if err != nil {
		// A missing name must not cost the user the clip.
		o.logger.Warn("could not resolve clip identifier, using default name",
			zap.String("mode", string(mode)),
			zap.Error(err))
		raw = ""
	}

	clip := domain.ClipNameContext{
		ID:            uuid.NewString(),
		Mode:          mode,
		RawIdentifier: raw,
		ResolvedName:  rules.Resolve(raw, kind),
		Timestamp:     start,
	}

	savedPath, err := o.buffer.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to save replay buffer: %w", err)
	}

	filename := naming.SanitizeClipName(tpl.Format(clip.ResolvedName, clip.Timestamp))
	if filename == "" {
		filename = clip.ResolvedName
	}
	finalPath := o.placeClip(savedPath, clip.ResolvedName, filename)

	if finalPath != savedPath {
		if err := o.fsManager.Move(savedPath, finalPath); err != nil {
			o.logger.Warn("failed to rename clip, keeping original path",
				zap.String("from", savedPath),
				zap.String("to", finalPath),
				zap.Error(err))
			finalPath = savedPath
		}
	}

	result := &domain.SaveResult{
		Context:  clip,
		Path:     finalPath,
		Duration: o.now().Sub(start),
	}
	if size, err := o.fsManager.Size(finalPath); err == nil {
		result.SizeBytes = size
	}

	o.logger.Info("clip saved",
		zap.String("id", clip.ID),
		zap.String("source", trigger.Source),
		zap.String("mode", string(mode)),
		zap.String("identifier", raw),
		zap.String("name", clip.ResolvedName),
		zap.String("path", finalPath))

	if o.history != nil {
		rec := domain.ClipRecord{
			ID:      clip.ID,
			Name:    clip.ResolvedName,
			Path:    finalPath,
			Mode:    mode,
			SavedAt: start,
		}
		if err := o.history.AddClip(rec); err != nil {
			o.logger.Warn("failed to record clip history", zap.Error(err))
		}
	}

	return result, nil
}

// placeClip builds the final path under the base path (or next to the saved
// file), optionally inside a folder named after the clip, avoiding existing files.
func (o *SaveOrchestrator) placeClip(savedPath, clipName, filename string) string {
	dir := filepath.Dir(savedPath)
	if o.config.BasePath != "" {
		dir = filepath.Clean(o.fsManager.ExpandHome(o.config.BasePath))
	}
	if o.config.SortIntoFolders {
		dir = filepath.Join(dir, clipName)
	}
	ext := filepath.Ext(savedPath)

	candidate := filepath.Join(dir, filename+ext)
	if candidate == savedPath {
		return candidate
	}
	for n := 1; o.fsManager.Exists(candidate); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", filename, n, ext))
		if candidate == savedPath {
			break
		}
	}
	return candidate
}
