// Package install dispatches the install script to every host of a plan in
// parallel and collects one result per host.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eniac111/oodeploy/internal/deployment"
	"github.com/eniac111/oodeploy/internal/logging"
	"github.com/eniac111/oodeploy/internal/metrics"
	"github.com/eniac111/oodeploy/internal/modules/shell"
	"github.com/eniac111/oodeploy/internal/plan"
	"github.com/eniac111/oodeploy/internal/ssh"
)

// RemoteScript is where the install script is copied to, relative to the
// login user's home directory.
const RemoteScript = "openshift.sh"

// DispatchError is the failure of one host's install job.
type DispatchError struct {
	Host string
	// Stage is "upload" or "run".
	Stage string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("install on %s failed during %s: %v", e.Host, e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Result is the outcome of one host's install job.
type Result struct {
	Host       string
	ExitStatus int
	Output     string
	Duration   time.Duration
	Err        error
}

// Failed reports whether the job did not complete successfully.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Coordinator runs install jobs.
type Coordinator struct {
	// Remote runs jobs on every host except the local machine.
	Remote ssh.Runner
	// Local runs the job when the host alias is localhost. Defaults to a
	// shell.Runner.
	Local ssh.Runner
	// Script is the local path of the install script.
	Script string
	// LocalDir is where the script is staged for localhost jobs. Defaults to
	// the current user's home directory, mirroring remote hosts.
	LocalDir string
	Log      logrus.FieldLogger
	Metrics  *metrics.Recorder
}

func (c *Coordinator) local() ssh.Runner {
	if c.Local == nil {
		return shell.NewRunner()
	}
	return c.Local
}

// destination returns where the script goes on h and the command that runs it.
func (c *Coordinator) destination(h deployment.Host) (string, string, error) {
	if !h.IsLocal() {
		return RemoteScript, "~/" + RemoteScript, nil
	}
	dir := c.LocalDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		dir = home
	}
	path, err := filepath.Abs(filepath.Join(dir, RemoteScript))
	if err != nil {
		return "", "", err
	}
	return path, ssh.Quote(path), nil
}

// Run starts one job per step without waiting for the previous one and
// blocks until all of them have finished. A failing job never stops its
// siblings. Results are returned in plan order.
func (c *Coordinator) Run(ctx context.Context, p *plan.Plan) []Result {
	log := c.Log
	if log == nil {
		log = logging.Discard()
	}

	type indexed struct {
		i   int
		res Result
	}
	resultChan := make(chan indexed, len(p.Steps))

	for i, step := range p.Steps {
		log.WithField("host", step.Host.SSHHost).Infof("Starting installation of %v", step.Components)
		go func() {
			resultChan <- indexed{i: i, res: c.runJob(ctx, log, step)}
		}()
	}

	results := make([]Result, len(p.Steps))
	for range len(p.Steps) {
		r := <-resultChan
		results[r.i] = r.res
	}
	return results
}

func (c *Coordinator) runJob(ctx context.Context, log logrus.FieldLogger, step plan.Step) (res Result) {
	h := step.Host
	log = log.WithField("host", h.SSHHost)
	start := time.Now()

	res.Host = h.SSHHost
	defer func() {
		res.Duration = time.Since(start)
		c.Metrics.InstallJob(!res.Failed(), res.Duration)
	}()

	req := ssh.Request{
		User:     h.User,
		Host:     h.SSHHost,
		Elevated: !h.Privileged(),
		Env:      step.Env,
	}
	runner := c.Remote
	if h.IsLocal() {
		runner = c.local()
	}

	dest, command, err := c.destination(h)
	if err != nil {
		res.ExitStatus = -1
		res.Err = &DispatchError{Host: h.SSHHost, Stage: "upload", Err: err}
		return res
	}

	log.Infof("Copying deployment script to target %s", h.SSHHost)
	err = runner.Upload(ctx, ssh.Transfer{
		User:        h.User,
		Host:        h.SSHHost,
		Source:      c.Script,
		Destination: dest,
		Mode:        0o755,
	})
	if err != nil {
		log.WithError(err).Error("Failed to copy deployment script")
		res.ExitStatus = -1
		res.Err = &DispatchError{Host: h.SSHHost, Stage: "upload", Err: err}
		return res
	}
	req.Command = command

	log.Info("Running deployment")
	out, err := runner.Run(ctx, req)
	res.ExitStatus = out.ExitStatus
	res.Output = out.Output
	if err != nil {
		log.WithError(err).WithField("exit_status", out.ExitStatus).Error("Installation failed")
		res.Err = &DispatchError{Host: h.SSHHost, Stage: "run", Err: err}
		return res
	}

	log.Infof("Installation completed for host %s", h.Hostname)
	return res
}

// Failures returns the failed results.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
