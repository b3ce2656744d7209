package main

import (
	"github.com/spf13/cobra"

	"yanode/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var noAutoStart bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				NoAutoStart: noAutoStart,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&noAutoStart, "no-autostart", false, "Keep the node off until `yanode start`")
	return cmd
}
