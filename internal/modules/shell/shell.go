// Package shell runs install commands on the control machine itself.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/eniac111/oodeploy/internal/envmap"
	"github.com/eniac111/oodeploy/internal/modules/file"
	"github.com/eniac111/oodeploy/internal/ssh"
)

// Runner implements ssh.Runner for the local host. The request environment
// is applied to the process environment for the duration of the command and
// restored afterwards.
type Runner struct {
	// Shell is the interpreter command. Defaults to bash -l -c.
	Shell []string
}

var _ ssh.Runner = (*Runner)(nil)

// NewRunner returns a local runner using a login bash shell.
func NewRunner() *Runner {
	return &Runner{Shell: []string{"bash", "-l", "-c"}}
}

// Run executes req.Command locally. User and Host are ignored.
func (r *Runner) Run(ctx context.Context, req ssh.Request) (ssh.Result, error) {
	line := req.Command
	if req.Elevated {
		// sudo resets the environment; pass the variables on its command line.
		line = req.CommandLine()
	}

	var res ssh.Result
	err := envmap.Overlay(req.Env, func() error {
		args := append(append([]string{}, r.Shell[1:]...), line)
		cmd := exec.CommandContext(ctx, r.Shell[0], args...)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		runErr := cmd.Run()
		res.Output = out.String()
		if runErr == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitStatus = exitErr.ExitCode()
		} else {
			res.ExitStatus = -1
		}
		return fmt.Errorf("command %q failed: %w", req.Command, runErr)
	})
	return res, err
}

// Upload places the file locally.
func (r *Runner) Upload(_ context.Context, t ssh.Transfer) error {
	_, err := file.Place(t.Source, t.Destination, t.Mode)
	return err
}
