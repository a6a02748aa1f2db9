package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// X11WindowInspector implements domain.WindowInspector with xdotool.
// The window PID is resolved to an executable path through ProcessManager.
type X11WindowInspector struct {
	pm        domain.ProcessManager
	cmdRunner CommandRunner
}

// NewX11WindowInspector creates a window inspector backed by xdotool.
func NewX11WindowInspector(pm domain.ProcessManager) *X11WindowInspector {
	return &X11WindowInspector{pm: pm, cmdRunner: &RealCommandRunner{}}
}

// NewX11WindowInspectorWithDeps creates an inspector with injectable dependencies (for testing)
func NewX11WindowInspectorWithDeps(pm domain.ProcessManager, cmdRunner CommandRunner) *X11WindowInspector {
	return &X11WindowInspector{pm: pm, cmdRunner: cmdRunner}
}

// Foreground returns the currently focused window.
func (x *X11WindowInspector) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	out, err := x.cmdRunner.Output(ctx, "xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		return domain.ForegroundWindow{}, fmt.Errorf("failed to query active window: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return domain.ForegroundWindow{}, fmt.Errorf("unexpected window pid %q", strings.TrimSpace(string(out)))
	}

	exe, err := x.pm.Executable(pid)
	if err != nil {
		return domain.ForegroundWindow{}, fmt.Errorf("failed to resolve executable: %w", err)
	}

	win := domain.ForegroundWindow{PID: pid, ExecutablePath: exe}
	// Title is informational only.
	if title, err := x.cmdRunner.Output(ctx, "xdotool", "getactivewindow", "getwindowname"); err == nil {
		win.WindowTitle = strings.TrimSpace(string(title))
	}
	return win, nil
}

// Ensure X11WindowInspector implements domain.WindowInspector.
var _ domain.WindowInspector = (*X11WindowInspector)(nil)
