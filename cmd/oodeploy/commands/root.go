// Package commands defines the CLI command structure and flag bindings.
//
// Flags are bound to a viper instance so every setting can also come from
// the environment. Command execution is delegated to the handlers package.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eniac111/oodeploy/internal/settings"
)

// Root returns the root command for the oodeploy CLI.
func Root() *cobra.Command {
	v := settings.New()

	cmd := &cobra.Command{
		Use:           "oodeploy",
		Short:         "Install a multi-role platform across a fleet of hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP(settings.KeyConfig, "c", "", "Path to the deployment file (default: $"+settings.ConfigEnv+" or ~/.openshift/oo-install-cfg.yml)")
	cmd.PersistentFlags().String(settings.KeyLogLevel, "info", "Log level: debug, info, warn, error")
	bindPersistent(v, cmd, settings.KeyConfig, settings.KeyLogLevel)

	cmd.AddCommand(Deploy(v))
	cmd.AddCommand(Plan(v))
	cmd.AddCommand(Version())

	return cmd
}

func bindPersistent(v *viper.Viper, cmd *cobra.Command, keys ...string) {
	for _, k := range keys {
		_ = v.BindPFlag(k, cmd.PersistentFlags().Lookup(k))
	}
}

func bind(v *viper.Viper, cmd *cobra.Command, keys ...string) {
	for _, k := range keys {
		_ = v.BindPFlag(k, cmd.Flags().Lookup(k))
	}
}
