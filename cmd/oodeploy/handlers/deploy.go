// Package handlers implements the business logic for CLI commands.
//
// Handlers receive resolved settings and are independent of cobra, so they
// can be tested without the CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/eniac111/oodeploy/internal/deployment"
	"github.com/eniac111/oodeploy/internal/install"
	"github.com/eniac111/oodeploy/internal/logging"
	"github.com/eniac111/oodeploy/internal/metrics"
	"github.com/eniac111/oodeploy/internal/modules/shell"
	"github.com/eniac111/oodeploy/internal/plan"
	"github.com/eniac111/oodeploy/internal/reboot"
	"github.com/eniac111/oodeploy/internal/report"
	"github.com/eniac111/oodeploy/internal/settings"
	"github.com/eniac111/oodeploy/internal/ssh"
)

// Exit codes returned by the CLI.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitManualReboot = 2
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newRemoteRunner creates the SSH transport.
	newRemoteRunner = func(opts ssh.Options) (ssh.Runner, error) {
		return ssh.NewClient(opts)
	}

	// newLocalRunner creates the runner for the localhost entry.
	newLocalRunner = func() ssh.Runner {
		return shell.NewRunner()
	}

	// newClock provides the clock for the reboot probe loop.
	newClock = clockwork.NewRealClock

	// logOutput is where log lines go.
	logOutput io.Writer = os.Stderr
)

// Args are the positional arguments shared by deploy and plan.
type Args struct {
	// TargetVersion is accepted for compatibility and not used further.
	TargetVersion string
	// TargetNode switches to the add-node scenario.
	TargetNode string
}

// ParseArgs maps positional arguments to Args.
func ParseArgs(args []string) Args {
	var a Args
	if len(args) > 0 {
		a.TargetVersion = args[0]
	}
	if len(args) > 1 {
		a.TargetNode = args[1]
	}
	return a
}

// ExitCode maps a handler error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, reboot.ErrManualRebootRequired):
		return ExitManualReboot
	default:
		return ExitError
	}
}

// buildPlan loads, validates and plans the deployment. It has no side
// effects on any host.
func buildPlan(s *settings.Settings, args Args) (*deployment.Model, *plan.Plan, error) {
	cfg, err := deployment.Load(s.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	model, err := deployment.Build(cfg, deployment.Options{
		TargetNode: args.TargetNode,
		Inputs:     s.Inputs,
	})
	if err != nil {
		return nil, nil, err
	}
	p, err := plan.New(model, nil).Build()
	if err != nil {
		return nil, nil, err
	}
	return model, p, nil
}

// Deploy installs the platform on every host of the deployment file.
//
// The run has three phases:
//  1. Load and validate the deployment file and compute the plan. Any
//     problem here stops the run before a host is touched.
//  2. Install on all hosts in parallel. Failed jobs are reported at the end
//     but do not prevent the reboot phase.
//  3. Reboot the hosts one by one in plan order, waiting for each to answer.
func Deploy(ctx context.Context, s *settings.Settings, args Args, out io.Writer) error {
	log, err := logging.New(s.LogLevel, logOutput)
	if err != nil {
		return err
	}
	styles := report.NewStyles(logging.IsTerminal(out))

	model, p, err := buildPlan(s, args)
	if err != nil {
		return err
	}
	if args.TargetVersion != "" {
		log.Debugf("Target version %s", args.TargetVersion)
	}

	if _, err := os.Stat(s.Script); err != nil {
		return fmt.Errorf("install script not found: %w", err)
	}

	remote, err := newRemoteRunner(ssh.Options{
		Endpoints: endpoints(model),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to set up SSH: %w", err)
	}
	local := newLocalRunner()

	rec := metrics.New()
	defer pushMetrics(ctx, log, rec, s.Pushgateway)

	report.Plan(out, p, styles)

	coordinator := &install.Coordinator{
		Remote:  remote,
		Local:   local,
		Script:  s.Script,
		Log:     log,
		Metrics: rec,
	}
	results := coordinator.Run(ctx, p)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Info("Rebooting systems to complete installation")
	supervisor := reboot.New(remote, local)
	supervisor.Clock = newClock()
	supervisor.Interval = s.ProbeInterval
	supervisor.Retries = s.ProbeRetries
	supervisor.Log = log
	supervisor.Metrics = rec
	rep, rebootErr := supervisor.Run(ctx, p)

	fmt.Fprintln(out)
	report.Install(out, results, styles)
	report.Reboot(out, rep, styles)

	if rebootErr != nil {
		return rebootErr
	}
	if failed := install.Failures(results); len(failed) > 0 {
		log.Warnf("Installation failed on %d of %d hosts", len(failed), len(results))
	}
	return nil
}

func endpoints(m *deployment.Model) map[string]ssh.Endpoint {
	out := make(map[string]ssh.Endpoint, len(m.Hosts))
	for _, h := range m.Hosts {
		if h.Port != 0 || h.KeyPath != "" {
			out[h.SSHHost] = ssh.Endpoint{Port: h.Port, KeyPath: h.KeyPath}
		}
	}
	return out
}

func pushMetrics(ctx context.Context, log logrus.FieldLogger, rec *metrics.Recorder, url string) {
	if url == "" {
		return
	}
	if err := rec.Push(context.WithoutCancel(ctx), url); err != nil {
		log.WithError(err).Warn("Failed to push metrics")
	}
}
