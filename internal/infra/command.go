package infra

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Output executes a command and returns its stdout
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// CommandLine is a configured command split into program and arguments.
type CommandLine []string

// ParseCommandLine splits a configured command string with shell quoting
// rules. Variables and backticks are left alone; nothing runs through a shell.
func ParseCommandLine(s string) (CommandLine, error) {
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", s, err)
	}
	return CommandLine(args), nil
}

// mustCommandLine parses a command already checked by config validation.
// An unparsable command counts as not configured.
func mustCommandLine(s string) CommandLine {
	c, _ := ParseCommandLine(s)
	return c
}

// Empty reports whether no command is configured.
func (c CommandLine) Empty() bool {
	return len(c) == 0
}

// With returns the command with extra arguments appended.
func (c CommandLine) With(args ...string) CommandLine {
	out := make(CommandLine, 0, len(c)+len(args))
	out = append(out, c...)
	return append(out, args...)
}

func (c CommandLine) run(ctx context.Context, runner CommandRunner) error {
	return runner.Run(ctx, c[0], c[1:]...)
}

func (c CommandLine) output(ctx context.Context, runner CommandRunner) ([]byte, error) {
	return runner.Output(ctx, c[0], c[1:]...)
}

// lastLine returns the last non-empty line of command output.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
