package main

import (
	"github.com/spf13/cobra"

	"yanode/internal/ipc"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var since string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs served by this node",
		Long: "List jobs recorded in the node history, newest first.\n\n" +
			"--since accepts an RFC3339 time or a duration such as 24h.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Jobs(since)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Jobs)
				}
				renderJobs(cmd.OutOrStdout(), resp.Jobs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only jobs started at or after this time or duration ago")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newPaymentCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Show the payment account summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Payment()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Payment)
				}
				renderPayment(cmd.OutOrStdout(), resp.Payment)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}
