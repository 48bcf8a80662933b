package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eniac111/oodeploy/cmd/oodeploy/handlers"
	"github.com/eniac111/oodeploy/internal/reboot"
	"github.com/eniac111/oodeploy/internal/settings"
)

// Deploy returns the command that installs and reboots every host.
//
// Positional arguments:
//
//	[target-version]: platform version, accepted for compatibility
//	[target-node-hostname]: add only this node to an existing deployment
//
// Environment variables:
//
//	CONF_CONFIG_FILE: deployment file location
//	OO_INSTALL_<NAME>: install inputs such as OO_INSTALL_RH_USERNAME
func Deploy(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [target-version] [target-node-hostname]",
		Short: "Install the platform on all hosts, then reboot them in order",
		Long: `Install the platform on every host of the deployment file.

Hosts are installed in parallel, then rebooted one at a time in dependency
order (name service, datastore, message queue, broker, nodes). Each host must
answer again before the next one is rebooted.

Examples:
  # Install everything described in ~/.openshift/oo-install-cfg.yml
  oodeploy deploy

  # Add node1.example.com to an existing deployment
  oodeploy deploy 2.2 node1.example.com`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(v)
			if err != nil {
				return err
			}
			return handlers.Deploy(cmd.Context(), s, handlers.ParseArgs(args), cmd.OutOrStdout())
		},
	}

	cmd.Flags().String(settings.KeyScript, "", "Path to the install script (default: openshift.sh next to the executable)")
	cmd.Flags().String(settings.KeyPushgateway, "", "Pushgateway URL to push run metrics to")
	cmd.Flags().Duration(settings.KeyProbeInterval, reboot.DefaultInterval, "Wait before each probe after a reboot")
	cmd.Flags().Int(settings.KeyProbeRetries, reboot.DefaultRetries, "Probes allowed after the first failed one")
	bind(v, cmd, settings.KeyScript, settings.KeyPushgateway, settings.KeyProbeInterval, settings.KeyProbeRetries)

	return cmd
}
