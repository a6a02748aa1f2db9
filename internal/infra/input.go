package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// IdleInputMonitor implements domain.InputMonitor with xprintidle, which
// prints the milliseconds since the last keyboard or mouse event.
type IdleInputMonitor struct {
	cmdRunner CommandRunner
	now       func() time.Time
}

// NewIdleInputMonitor creates an input monitor backed by xprintidle.
func NewIdleInputMonitor() *IdleInputMonitor {
	return &IdleInputMonitor{cmdRunner: &RealCommandRunner{}, now: time.Now}
}

// NewIdleInputMonitorWithDeps creates a monitor with injectable dependencies (for testing)
func NewIdleInputMonitorWithDeps(cmdRunner CommandRunner, now func() time.Time) *IdleInputMonitor {
	return &IdleInputMonitor{cmdRunner: cmdRunner, now: now}
}

// LastActivity returns the timestamp of the last input event.
func (m *IdleInputMonitor) LastActivity(ctx context.Context) (domain.InputActivitySample, error) {
	out, err := m.cmdRunner.Output(ctx, "xprintidle")
	if err != nil {
		return domain.InputActivitySample{}, fmt.Errorf("failed to query idle time: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil || ms < 0 {
		return domain.InputActivitySample{}, fmt.Errorf("unexpected idle time %q", strings.TrimSpace(string(out)))
	}
	return domain.InputActivitySample{
		LastActivity: m.now().Add(-time.Duration(ms) * time.Millisecond),
	}, nil
}

// Ensure IdleInputMonitor implements domain.InputMonitor.
var _ domain.InputMonitor = (*IdleInputMonitor)(nil)
