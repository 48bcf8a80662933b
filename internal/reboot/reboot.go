// Package reboot restarts the hosts of a plan one at a time, waiting for each
// to answer again before moving to the next.
package reboot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/eniac111/oodeploy/internal/deployment"
	"github.com/eniac111/oodeploy/internal/logging"
	"github.com/eniac111/oodeploy/internal/metrics"
	"github.com/eniac111/oodeploy/internal/plan"
	"github.com/eniac111/oodeploy/internal/ssh"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultRetries  = 5

	RebootCommand = "reboot"
	ProbeCommand  = "exit"
)

// ErrManualRebootRequired is returned when a reboot could not be issued. The
// remaining hosts are left untouched.
var ErrManualRebootRequired = errors.New("manual reboot required")

// Outcome is the final state of one host.
type Outcome string

const (
	// Responsive means a probe succeeded after the reboot.
	Responsive Outcome = "responsive"
	// Exhausted means no probe succeeded within the retry budget.
	Exhausted Outcome = "exhausted"
)

// HostOutcome is the reboot result of a single host.
type HostOutcome struct {
	Host    string
	Outcome Outcome
	Probes  int
}

// Report lists the hosts the supervisor got through, in plan order.
type Report struct {
	Hosts []HostOutcome
}

// Incomplete reports whether any host never answered after its reboot.
func (r Report) Incomplete() bool {
	for _, h := range r.Hosts {
		if h.Outcome == Exhausted {
			return true
		}
	}
	return false
}

// Supervisor drives the reboot phase.
type Supervisor struct {
	Remote ssh.Runner
	Local  ssh.Runner
	Clock  clockwork.Clock
	// Interval is the wait before every probe.
	Interval time.Duration
	// Retries is the number of probes allowed after the first one fails.
	Retries int
	Log     logrus.FieldLogger
	Metrics *metrics.Recorder
}

// New returns a Supervisor with the default interval and retry budget.
func New(remote, local ssh.Runner) *Supervisor {
	return &Supervisor{
		Remote:   remote,
		Local:    local,
		Clock:    clockwork.NewRealClock(),
		Interval: DefaultInterval,
		Retries:  DefaultRetries,
	}
}

func (s *Supervisor) runner(h deployment.Host) ssh.Runner {
	if h.IsLocal() {
		return s.Local
	}
	return s.Remote
}

// Run reboots every host of p strictly in plan order. A host that does not
// come back within the retry budget is reported and skipped; failing to
// issue a reboot at all stops the run with ErrManualRebootRequired.
func (s *Supervisor) Run(ctx context.Context, p *plan.Plan) (Report, error) {
	log := s.Log
	if log == nil {
		log = logging.Discard()
	}
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var report Report
	for _, step := range p.Steps {
		h := step.Host
		hlog := log.WithField("host", h.SSHHost)
		runner := s.runner(h)

		hlog.Info("Rebooting host")
		res, err := runner.Run(ctx, ssh.Request{
			User:     h.User,
			Host:     h.SSHHost,
			Elevated: !h.Privileged(),
			Command:  RebootCommand,
		})
		if err != nil && !errors.Is(err, ssh.ErrDisconnected) && res.ExitStatus != ssh.DisconnectStatus {
			hlog.WithError(err).Errorf("Attempted to reboot %s but was unsuccessful. "+
				"You must manually reboot the hosts in this deployment to complete the installation process.", h.SSHHost)
			return report, fmt.Errorf("%w: reboot of %s failed: %v", ErrManualRebootRequired, h.SSHHost, err)
		}

		outcome, err := s.waitResponsive(ctx, clock, hlog, runner, h)
		if err != nil {
			return report, err
		}
		s.Metrics.RebootOutcome(string(outcome.Outcome))
		report.Hosts = append(report.Hosts, outcome)
	}
	return report, nil
}

func (s *Supervisor) waitResponsive(ctx context.Context, clock clockwork.Clock, log logrus.FieldLogger, runner ssh.Runner, h deployment.Host) (HostOutcome, error) {
	out := HostOutcome{Host: h.SSHHost}
	retries := s.Retries

	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-clock.After(s.Interval):
		}

		out.Probes++
		log.Infof("Attempting to contact %s", h.SSHHost)
		_, err := runner.Run(ctx, ssh.Request{
			User:    h.User,
			Host:    h.SSHHost,
			Command: ProbeCommand,
		})
		s.Metrics.Probe(err == nil)
		if err == nil {
			log.Info("Host is responsive")
			out.Outcome = Responsive
			return out, nil
		}

		retries--
		if retries < 0 {
			log.WithError(err).Warnf("Could not reconnect to %s after %d attempts. "+
				"Moving on to next host, but there may be issues with your deployment.", h.SSHHost, out.Probes)
			out.Outcome = Exhausted
			return out, nil
		}
		log.WithError(err).Infof("Not responding yet; trying again in %s", s.Interval)
	}
}
