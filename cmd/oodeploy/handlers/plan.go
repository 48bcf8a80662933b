package handlers

import (
	"fmt"
	"io"

	"github.com/eniac111/oodeploy/internal/logging"
	"github.com/eniac111/oodeploy/internal/report"
	"github.com/eniac111/oodeploy/internal/settings"
)

// Plan validates the deployment file and prints the install order and each
// host's environment without contacting any host.
func Plan(s *settings.Settings, args Args, out io.Writer) error {
	_, p, err := buildPlan(s, args)
	if err != nil {
		return err
	}

	styles := report.NewStyles(logging.IsTerminal(out))
	report.Plan(out, p, styles)
	fmt.Fprintln(out)
	report.Environment(out, p, styles)
	return nil
}
