package devcli

import (
	"context"

	"github.com/spf13/cobra"
)

func newDevCmd(factory EnvironmentFactory) *cobra.Command {
	dev := &cobra.Command{
		Use:   "dev",
		Short: "Manage the development environment",
	}

	subcommands := []struct {
		use   string
		short string
		run   func(Environment, context.Context) error
	}{
		{"setup", "Verify the project layout, start PostgreSQL and apply migrations", Environment.Setup},
		{"start", "Start PostgreSQL, the API server and the UI", Environment.Start},
		{"stop", "Stop the development environment", Environment.Stop},
		{"clean", "Remove containers and volumes", Environment.Clean},
	}

	for _, sc := range subcommands {
		run := sc.run
		dev.AddCommand(&cobra.Command{
			Use:   sc.use,
			Short: sc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				env, err := factory(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return run(env, cmd.Context())
			},
		})
	}

	return dev
}
