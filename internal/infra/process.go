// Package infra implements infrastructure concerns: processes, windows,
// the replay buffer, notifications and the encrypted state store.
package infra

import (
	"fmt"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// Executable returns the absolute executable path of pid.
func (pm *ProcessManagerImpl) Executable(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	exe, err := p.Exe()
	if err != nil {
		return "", fmt.Errorf("failed to read executable of pid %d: %w", pid, err)
	}
	if exe == "" {
		// Kernel threads and some sandboxed processes hide their exe link.
		name, err := p.Name()
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return exe, nil
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Signal sends sig to pid.
func (pm *ProcessManagerImpl) Signal(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
