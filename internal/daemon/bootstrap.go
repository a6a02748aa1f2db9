package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// ErrNotRunning is returned when no live daemon is registered.
var ErrNotRunning = errors.New("smart-replays daemon is not running")

// StartDetached spawns "<binary> run <args...>" detached from the parent process.
func StartDetached(binaryPath string, args ...string) (int, error) {
	if binaryPath == "" {
		executable, err := os.Executable()
		if err != nil {
			return 0, err
		}
		binaryPath = executable
	}

	cmd := exec.Command(binaryPath, append([]string{"run"}, args...)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Let the child be reaped by init once we exit.
	_ = cmd.Process.Release()
	return pid, nil
}

// RunningDaemon returns the registered daemon if its PID is alive.
func RunningDaemon(store domain.StateStore, pm domain.ProcessManager) (*domain.DaemonInfo, error) {
	info, err := store.Daemon()
	if err != nil {
		return nil, err
	}
	if info == nil || info.PID == 0 || !pm.IsRunning(info.PID) {
		return nil, ErrNotRunning
	}
	return info, nil
}

// SignalDaemon delivers sig to the running daemon.
func SignalDaemon(store domain.StateStore, pm domain.ProcessManager, sig os.Signal) (int, error) {
	info, err := RunningDaemon(store, pm)
	if err != nil {
		return 0, err
	}
	if err := pm.Signal(info.PID, sig); err != nil {
		return 0, fmt.Errorf("failed to signal daemon %d: %w", info.PID, err)
	}
	return info.PID, nil
}
