// Package report renders the install plan and the run summary for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/eniac111/oodeploy/internal/install"
	"github.com/eniac111/oodeploy/internal/plan"
	"github.com/eniac111/oodeploy/internal/reboot"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
)

// Styles selects between colored and plain output.
type Styles struct {
	Title   lipgloss.Style
	Dim     lipgloss.Style
	OK      lipgloss.Style
	Failed  lipgloss.Style
	Warning lipgloss.Style
}

// NewStyles returns colored styles when styled is true and no-op styles otherwise.
func NewStyles(styled bool) Styles {
	if !styled {
		plain := lipgloss.NewStyle()
		return Styles{Title: plain, Dim: plain, OK: plain, Failed: plain, Warning: plain}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorBlue),
		Dim:     lipgloss.NewStyle().Foreground(colorDim),
		OK:      lipgloss.NewStyle().Foreground(colorGreen),
		Failed:  lipgloss.NewStyle().Bold(true).Foreground(colorRed),
		Warning: lipgloss.NewStyle().Foreground(colorYellow),
	}
}

// Plan writes the hosts of p in install order with their roles.
func Plan(w io.Writer, p *plan.Plan, s Styles) {
	title := "Preparing to install on the following hosts:"
	if p.AddNode {
		title = "Preparing to add this node to an existing system:"
	}
	fmt.Fprintln(w, s.Title.Render(title))
	for _, step := range p.Steps {
		roleNames := make([]string, len(step.Host.Roles))
		for i, r := range step.Host.Roles {
			roleNames[i] = string(r)
		}
		fmt.Fprintf(w, "  * %s: %s\n", step.Host.SSHHost, strings.Join(roleNames, ", "))
	}
}

// Environment writes each host's install environment. Credential values are masked.
func Environment(w io.Writer, p *plan.Plan, s Styles) {
	for _, step := range p.Steps {
		fmt.Fprintln(w, s.Title.Render(step.Host.SSHHost))
		masked := step.Env.Masked()
		for _, k := range masked.Keys() {
			fmt.Fprintf(w, "    %s=%s\n", k, s.Dim.Render(masked[k]))
		}
	}
}

// Install writes one line per install job.
func Install(w io.Writer, results []install.Result, s Styles) {
	fmt.Fprintln(w, s.Title.Render("Installation results:"))
	for _, r := range results {
		if r.Failed() {
			fmt.Fprintf(w, "  %s %s (exit status %d): %v\n", s.Failed.Render("FAILED"), r.Host, r.ExitStatus, r.Err)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n", s.OK.Render("ok"), r.Host, s.Dim.Render(r.Duration.Round(time.Second).String()))
	}
}

// Reboot writes the reboot outcome of every host the supervisor reached.
func Reboot(w io.Writer, rep reboot.Report, s Styles) {
	fmt.Fprintln(w, s.Title.Render("Reboot results:"))
	for _, h := range rep.Hosts {
		switch h.Outcome {
		case reboot.Responsive:
			fmt.Fprintf(w, "  %s %s after %d probe(s)\n", s.OK.Render("up"), h.Host, h.Probes)
		default:
			fmt.Fprintf(w, "  %s %s did not respond after %d probes\n", s.Warning.Render("WARNING"), h.Host, h.Probes)
		}
	}
	if rep.Incomplete() {
		fmt.Fprintln(w, s.Warning.Render("Some hosts did not come back; the deployment may be incomplete."))
	}
}
