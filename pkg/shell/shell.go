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

package shell

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os/exec"
	"strings"
	"time"

	"tfjob-e2e/pkg/logging"
)

// CommandResult holds the outcome of a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Command is a subprocess invocation that can be fed stdin before it runs.
type Command struct {
	ctx   context.Context
	name  string
	args  []string
	input string
	dir   string
}

// NewCommand prepares a command without running it.
func NewCommand(name string, args ...string) *Command {
	return NewCommandContext(context.Background(), name, args...)
}

// NewCommandContext prepares a command that is killed when ctx is done.
func NewCommandContext(ctx context.Context, name string, args ...string) *Command {
	return &Command{ctx: ctx, name: name, args: args}
}

// SetInput sets the content written to the command's stdin.
func (c *Command) SetInput(input string) {
	c.input = input
}

// SetDir sets the working directory of the command.
func (c *Command) SetDir(dir string) {
	c.dir = dir
}

// String returns the command line as it would be typed in a shell.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Execute runs the command and waits for it. A command that cannot be
// started at all is reported with exit code -1 and the error in Stderr.
func (c *Command) Execute() CommandResult {
	cmd := exec.CommandContext(c.ctx, c.name, c.args...)
	cmd.Dir = c.dir
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Executing: %s", c.String())
	err := cmd.Run()

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	return res
}

// ExecuteCommand runs name with args and returns its result.
func ExecuteCommand(name string, args ...string) CommandResult {
	return NewCommand(name, args...).Execute()
}

// RandomString returns a random string of lowercase letters of the given length.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz"
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}
