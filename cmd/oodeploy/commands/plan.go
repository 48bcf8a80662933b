package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eniac111/oodeploy/cmd/oodeploy/handlers"
	"github.com/eniac111/oodeploy/internal/settings"
)

// Plan returns the command that prints the install order without touching
// any host.
func Plan(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [target-version] [target-node-hostname]",
		Short: "Validate the deployment file and print the install plan",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(v)
			if err != nil {
				return err
			}
			return handlers.Plan(s, handlers.ParseArgs(args), cmd.OutOrStdout())
		},
	}
}
