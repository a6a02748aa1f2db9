package infra

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// NotifierConfig controls user-facing save notifications.
type NotifierConfig struct {
	Success        bool
	Failure        bool
	SuccessCommand string // Receives the clip path and name as arguments
	FailureCommand string // Receives the error message as argument
}

// CommandNotifier implements domain.Notifier. Without configured commands it
// falls back to notify-send.
type CommandNotifier struct {
	config    NotifierConfig
	success   CommandLine
	failure   CommandLine
	cmdRunner CommandRunner
}

// NewCommandNotifier creates a notifier backed by external commands.
func NewCommandNotifier(config NotifierConfig) *CommandNotifier {
	return NewCommandNotifierWithDeps(config, &RealCommandRunner{})
}

// NewCommandNotifierWithDeps creates a notifier with injectable dependencies (for testing)
func NewCommandNotifierWithDeps(config NotifierConfig, cmdRunner CommandRunner) *CommandNotifier {
	return &CommandNotifier{
		config:    config,
		success:   mustCommandLine(config.SuccessCommand),
		failure:   mustCommandLine(config.FailureCommand),
		cmdRunner: cmdRunner,
	}
}

// NotifySuccess reports a saved clip.
func (n *CommandNotifier) NotifySuccess(ctx context.Context, result domain.SaveResult) error {
	if !n.config.Success {
		return nil
	}
	if !n.success.Empty() {
		return n.success.With(result.Path, result.Context.ResolvedName).run(ctx, n.cmdRunner)
	}
	body := fmt.Sprintf("%s (%s)", filepath.Base(result.Path), humanize.Bytes(uint64(max(result.SizeBytes, 0))))
	return n.cmdRunner.Run(ctx, "notify-send", "--app-name=smart-replays", "Replay saved", body)
}

// NotifyFailure reports a failed save or restart.
func (n *CommandNotifier) NotifyFailure(ctx context.Context, reason error) error {
	if !n.config.Failure {
		return nil
	}
	msg := "unknown error"
	if reason != nil {
		msg = reason.Error()
	}
	if !n.failure.Empty() {
		return n.failure.With(msg).run(ctx, n.cmdRunner)
	}
	return n.cmdRunner.Run(ctx, "notify-send", "--app-name=smart-replays", "--urgency=critical", "Replay not saved", msg)
}

// ClipboardNotifier copies the saved clip path to the clipboard.
type ClipboardNotifier struct {
	write     func(string) error
	supported bool
}

// NewClipboardNotifier creates a clipboard notifier.
func NewClipboardNotifier() *ClipboardNotifier {
	return &ClipboardNotifier{write: clipboard.WriteAll, supported: !clipboard.Unsupported}
}

// NotifySuccess copies the clip path.
func (c *ClipboardNotifier) NotifySuccess(ctx context.Context, result domain.SaveResult) error {
	if !c.supported {
		return errors.New("clipboard not supported on this system")
	}
	return c.write(result.Path)
}

// NotifyFailure does nothing.
func (c *ClipboardNotifier) NotifyFailure(ctx context.Context, reason error) error {
	return nil
}

// LogNotifier records save outcomes in the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a logging notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) NotifySuccess(ctx context.Context, result domain.SaveResult) error {
	l.logger.Info("replay saved",
		zap.String("path", result.Path),
		zap.String("name", result.Context.ResolvedName),
		zap.String("size", humanize.Bytes(uint64(max(result.SizeBytes, 0)))),
		zap.Duration("took", result.Duration))
	return nil
}

func (l *LogNotifier) NotifyFailure(ctx context.Context, reason error) error {
	l.logger.Warn("replay not saved", zap.Error(reason))
	return nil
}

// MultiNotifier fans out to every notifier and joins their errors.
type MultiNotifier []domain.Notifier

func (m MultiNotifier) NotifySuccess(ctx context.Context, result domain.SaveResult) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifySuccess(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) NotifyFailure(ctx context.Context, reason error) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyFailure(ctx, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure notifiers implement domain.Notifier.
var (
	_ domain.Notifier = (*CommandNotifier)(nil)
	_ domain.Notifier = (*ClipboardNotifier)(nil)
	_ domain.Notifier = (*LogNotifier)(nil)
	_ domain.Notifier = MultiNotifier(nil)
)
