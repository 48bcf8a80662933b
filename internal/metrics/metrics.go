// Package metrics records install and reboot outcomes for one run and can
// push them to a Prometheus Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "oodeploy"

// Recorder holds the collectors of a single run. A nil *Recorder discards
// everything, so callers never need to check.
type Recorder struct {
	registry *prometheus.Registry

	installJobs     *prometheus.CounterVec
	installDuration prometheus.Histogram
	probes          *prometheus.CounterVec
	rebootHosts     *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		installJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oodeploy_install_jobs_total",
				Help: "Install jobs by result",
			},
			[]string{"result"},
		),
		installDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oodeploy_install_job_duration_seconds",
				Help:    "Install job duration",
				Buckets: prometheus.ExponentialBuckets(30, 2, 8),
			},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oodeploy_reboot_probes_total",
				Help: "Responsiveness probes after reboot by result",
			},
			[]string{"result"},
		),
		rebootHosts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oodeploy_reboot_hosts_total",
				Help: "Rebooted hosts by outcome",
			},
			[]string{"outcome"},
		),
	}
	r.registry.MustRegister(r.installJobs, r.installDuration, r.probes, r.rebootHosts)
	return r
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// InstallJob records one finished install job.
func (r *Recorder) InstallJob(ok bool, d time.Duration) {
	if r == nil {
		return
	}
	r.installJobs.WithLabelValues(result(ok)).Inc()
	r.installDuration.Observe(d.Seconds())
}

// Probe records one responsiveness probe.
func (r *Recorder) Probe(ok bool) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(result(ok)).Inc()
}

// RebootOutcome records how a host's reboot ended.
func (r *Recorder) RebootOutcome(outcome string) {
	if r == nil {
		return
	}
	r.rebootHosts.WithLabelValues(outcome).Inc()
}

// Push sends all collected metrics to the Pushgateway at url.
func (r *Recorder) Push(ctx context.Context, url string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, jobName).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
