package infra

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// mockCommandRunner is a test double for CommandRunner.
// Responses are keyed by the full command line.
type mockCommandRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) record(name string, args []string) string {
	line := strings.Join(append([]string{name}, args...), " ")
	m.mu.Lock()
	m.calls = append(m.calls, line)
	m.mu.Unlock()
	return line
}

func (m *mockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	line := m.record(name, args)
	return m.errs[line]
}

func (m *mockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := m.record(name, args)
	if err, ok := m.errs[line]; ok {
		return nil, err
	}
	out, ok := m.outputs[line]
	if !ok {
		return nil, fmt.Errorf("unexpected command %q", line)
	}
	return []byte(out), nil
}

func (m *mockCommandRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	executables map[int]string
}

func (m *mockProcessManager) Executable(pid int) (string, error) {
	exe, ok := m.executables[pid]
	if !ok {
		return "", fmt.Errorf("no such process %d", pid)
	}
	return exe, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	_, ok := m.executables[pid]
	return ok
}

func (m *mockProcessManager) Signal(pid int, sig os.Signal) error { return nil }
func (m *mockProcessManager) GetCurrentPID() int                  { return os.Getpid() }
