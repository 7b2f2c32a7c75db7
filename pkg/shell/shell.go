// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package shell runs external commands and reports their output and exit
// status without raising on non-zero exits; callers decide what a failure
// means.
package shell

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Result holds the outcome of an executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is a single external command invocation.
type Command struct {
	name  string
	args  []string
	stdin string
}

// NewCommand creates a command that can be further configured before Execute.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetInput provides data for the command's standard input.
func (c *Command) SetInput(input string) {
	c.stdin = input
}

// Execute runs the command to completion and captures its output.
func (c *Command) Execute() Result {
	cmd := exec.Command(c.name, c.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.stdin != "" {
		cmd.Stdin = strings.NewReader(c.stdin)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// The command never started (not found, permissions, ...).
			res.ExitCode = -1
			res.Stderr = err.Error()
		}
	}
	return res
}

// ExecuteCommand runs a command with default settings.
func ExecuteCommand(name string, args ...string) Result {
	return NewCommand(name, args...).Execute()
}

// StartDetached launches a command in its own session with stdout and stderr
// combined into logFile, and returns without waiting. The child keeps running
// after this process exits.
func StartDetached(logFile *os.File, name string, args ...string) (pid int, err error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid = cmd.Process.Pid
	// Reap the child when it exits so it does not linger as a zombie for the
	// life of this process.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
