package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// ErrCommandNotConfigured is returned when a buffer operation has no command.
var ErrCommandNotConfigured = errors.New("command not configured")

// BufferCommands configures the external commands that drive the replay buffer.
type BufferCommands struct {
	Save    string // Prints the saved clip path as its last output line
	Restart string // Stops and starts the buffer
	Status  string // Exit status 0 means the buffer is recording
	Scene   string // Prints the active scene name
	MaxClip time.Duration
}

// CommandBufferController implements domain.BufferController and
// domain.SceneProvider by shelling out to the recording application's CLI.
type CommandBufferController struct {
	save      CommandLine
	restart   CommandLine
	status    CommandLine
	scene     CommandLine
	maxClip   time.Duration
	cmdRunner CommandRunner
	logger    *zap.Logger
}

// NewCommandBufferController creates a buffer controller.
func NewCommandBufferController(cmds BufferCommands, logger *zap.Logger) *CommandBufferController {
	return NewCommandBufferControllerWithDeps(cmds, &RealCommandRunner{}, logger)
}

// NewCommandBufferControllerWithDeps creates a controller with injectable dependencies (for testing)
func NewCommandBufferControllerWithDeps(cmds BufferCommands, cmdRunner CommandRunner, logger *zap.Logger) *CommandBufferController {
	return &CommandBufferController{
		save:      mustCommandLine(cmds.Save),
		restart:   mustCommandLine(cmds.Restart),
		status:    mustCommandLine(cmds.Status),
		scene:     mustCommandLine(cmds.Scene),
		maxClip:   cmds.MaxClip,
		cmdRunner: cmdRunner,
		logger:    logger,
	}
}

// Save commits the buffer to disk and returns the written file path.
func (b *CommandBufferController) Save(ctx context.Context) (string, error) {
	if b.save.Empty() {
		return "", fmt.Errorf("buffer save: %w", ErrCommandNotConfigured)
	}
	out, err := b.save.output(ctx, b.cmdRunner)
	if err != nil {
		return "", fmt.Errorf("failed to save replay buffer: %w", err)
	}
	path := lastLine(out)
	if path == "" {
		return "", errors.New("save command printed no clip path")
	}
	return path, nil
}

// Restart stops and starts the buffer.
func (b *CommandBufferController) Restart(ctx context.Context) error {
	if b.restart.Empty() {
		return fmt.Errorf("buffer restart: %w", ErrCommandNotConfigured)
	}
	if err := b.restart.run(ctx, b.cmdRunner); err != nil {
		return fmt.Errorf("failed to restart replay buffer: %w", err)
	}
	b.logger.Debug("replay buffer restarted")
	return nil
}

// MaxClipLength returns the configured maximum replay length.
func (b *CommandBufferController) MaxClipLength(ctx context.Context) (time.Duration, error) {
	if b.maxClip <= 0 {
		return 0, errors.New("max clip length not configured")
	}
	return b.maxClip, nil
}

// IsActive reports whether the buffer is currently recording.
// Without a status command the buffer is assumed to be running.
func (b *CommandBufferController) IsActive(ctx context.Context) bool {
	if b.status.Empty() {
		return true
	}
	return b.status.run(ctx, b.cmdRunner) == nil
}

// CurrentScene returns the active scene name.
func (b *CommandBufferController) CurrentScene(ctx context.Context) (string, error) {
	if b.scene.Empty() {
		return "", fmt.Errorf("scene query: %w", ErrCommandNotConfigured)
	}
	out, err := b.scene.output(ctx, b.cmdRunner)
	if err != nil {
		return "", fmt.Errorf("failed to query scene: %w", err)
	}
	scene := strings.TrimSpace(lastLine(out))
	if scene == "" {
		return "", errors.New("scene command printed no scene")
	}
	return scene, nil
}

// Ensure CommandBufferController implements the buffer and scene interfaces.
var (
	_ domain.BufferController = (*CommandBufferController)(nil)
	_ domain.SceneProvider    = (*CommandBufferController)(nil)
)
