package reboot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/oodeploy/internal/deployment"
	"github.com/eniac111/oodeploy/internal/metrics"
	"github.com/eniac111/oodeploy/internal/plan"
	"github.com/eniac111/oodeploy/internal/roles"
	"github.com/eniac111/oodeploy/internal/ssh"
	"github.com/eniac111/oodeploy/internal/ssh/sshtest"
)

func testPlan(aliases ...string) *plan.Plan {
	p := &plan.Plan{}
	for _, a := range aliases {
		p.Steps = append(p.Steps, plan.Step{Host: deployment.Host{
			SSHHost: a, Hostname: a + ".example.com", User: "admin", Roles: []roles.Role{roles.Node},
		}})
	}
	return p
}

// probeScript fails the first failures[host] probes of each host.
func probeScript(failures map[string]int) func(ssh.Request) (ssh.Result, error) {
	var mu sync.Mutex
	count := map[string]int{}
	return func(req ssh.Request) (ssh.Result, error) {
		if req.Command == RebootCommand {
			return ssh.Result{ExitStatus: ssh.DisconnectStatus}, fmt.Errorf("%w: EOF", ssh.ErrDisconnected)
		}
		mu.Lock()
		defer mu.Unlock()
		count[req.Host]++
		if count[req.Host] <= failures[req.Host] {
			return ssh.Result{ExitStatus: ssh.DisconnectStatus}, errors.New("connection refused")
		}
		return ssh.Result{}, nil
	}
}

type runOutput struct {
	report Report
	err    error
}

// runWithClock starts s.Run and advances the fake clock once per expected probe.
func runWithClock(t *testing.T, s *Supervisor, p *plan.Plan, probes int) runOutput {
	t.Helper()
	fc := clockwork.NewFakeClock()
	s.Clock = fc

	done := make(chan runOutput, 1)
	go func() {
		r, err := s.Run(context.Background(), p)
		done <- runOutput{report: r, err: err}
	}()

	for range probes {
		fc.BlockUntil(1)
		fc.Advance(s.Interval)
	}

	select {
	case out := <-done:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not finish")
		return runOutput{}
	}
}

func newSupervisor(fake *sshtest.Fake) (*Supervisor, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	s := New(fake, fake)
	s.Log = logger
	return s, hook
}

func warnings(hook *logtest.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			n++
		}
	}
	return n
}

func TestRun_RecoversWithinBudget(t *testing.T) {
	fake := &sshtest.Fake{RunFunc: probeScript(map[string]int{"h1": 2})}
	s, hook := newSupervisor(fake)

	out := runWithClock(t, s, testPlan("h1", "h2"), 3+1)

	require.NoError(t, out.err)
	require.Len(t, out.report.Hosts, 2)
	assert.Equal(t, HostOutcome{Host: "h1", Outcome: Responsive, Probes: 3}, out.report.Hosts[0])
	assert.Equal(t, HostOutcome{Host: "h2", Outcome: Responsive, Probes: 1}, out.report.Hosts[1])
	assert.False(t, out.report.Incomplete())
	assert.Equal(t, 0, warnings(hook))
}

func TestRun_ExhaustedRetriesWarnsAndContinues(t *testing.T) {
	fake := &sshtest.Fake{RunFunc: probeScript(map[string]int{"h1": 100})}
	rec := metrics.New()
	s, hook := newSupervisor(fake)
	s.Metrics = rec

	out := runWithClock(t, s, testPlan("h1", "h2"), 6+1)

	require.NoError(t, out.err)
	require.Len(t, out.report.Hosts, 2)
	assert.Equal(t, HostOutcome{Host: "h1", Outcome: Exhausted, Probes: 6}, out.report.Hosts[0])
	assert.Equal(t, Responsive, out.report.Hosts[1].Outcome)
	assert.True(t, out.report.Incomplete())
	assert.Equal(t, 1, warnings(hook))

	h1 := fake.RunsFor("h1")
	require.Len(t, h1, 7)
	assert.Equal(t, RebootCommand, h1[0].Command)
	assert.True(t, h1[0].Elevated)
	for _, r := range h1[1:] {
		assert.Equal(t, ProbeCommand, r.Command)
	}
}

func TestRun_StrictPlanOrder(t *testing.T) {
	fake := &sshtest.Fake{RunFunc: probeScript(nil)}
	s, _ := newSupervisor(fake)

	out := runWithClock(t, s, testPlan("a", "c", "b", "d"), 4)
	require.NoError(t, out.err)

	var order []string
	for _, r := range fake.Runs() {
		order = append(order, r.Host+":"+r.Command)
	}
	assert.Equal(t, []string{
		"a:reboot", "a:exit",
		"c:reboot", "c:exit",
		"b:reboot", "b:exit",
		"d:reboot", "d:exit",
	}, order)
}

func TestRun_RebootIssueFailureIsFatal(t *testing.T) {
	fake := &sshtest.Fake{RunFunc: func(req ssh.Request) (ssh.Result, error) {
		if req.Host == "h1" && req.Command == RebootCommand {
			return ssh.Result{ExitStatus: 1}, errors.New("sudo: a password is required")
		}
		return ssh.Result{}, nil
	}}
	s, _ := newSupervisor(fake)

	out := runWithClock(t, s, testPlan("h1", "h2"), 0)

	require.Error(t, out.err)
	assert.ErrorIs(t, out.err, ErrManualRebootRequired)
	assert.Empty(t, out.report.Hosts)
	assert.Len(t, fake.Runs(), 1)
	assert.Empty(t, fake.RunsFor("h2"))
}

func TestRun_FatalAfterEarlierHostsCompleted(t *testing.T) {
	fake := &sshtest.Fake{RunFunc: func(req ssh.Request) (ssh.Result, error) {
		if req.Host == "h2" && req.Command == RebootCommand {
			return ssh.Result{ExitStatus: -1}, errors.New("dial tcp: connection refused")
		}
		return ssh.Result{}, nil
	}}
	s, _ := newSupervisor(fake)

	out := runWithClock(t, s, testPlan("h1", "h2", "h3"), 1)

	assert.ErrorIs(t, out.err, ErrManualRebootRequired)
	require.Len(t, out.report.Hosts, 1)
	assert.Equal(t, "h1", out.report.Hosts[0].Host)
	assert.Empty(t, fake.RunsFor("h3"))
}

func TestRun_LocalHostUsesLocalRunner(t *testing.T) {
	remote := &sshtest.Fake{}
	local := &sshtest.Fake{}
	s := New(remote, local)
	p := &plan.Plan{Steps: []plan.Step{{Host: deployment.Host{SSHHost: deployment.LocalHost, User: "root"}}}}

	out := runWithClock(t, s, p, 1)

	require.NoError(t, out.err)
	assert.Empty(t, remote.Runs())
	runs := local.Runs()
	require.Len(t, runs, 2)
	assert.False(t, runs[0].Elevated)
}

func TestRun_ContextCancelled(t *testing.T) {
	fake := &sshtest.Fake{}
	s := New(fake, fake)
	s.Clock = clockwork.NewFakeClock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, testPlan("h1"))
	assert.ErrorIs(t, err, context.Canceled)
}
