package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Webhook retry queue",
	}
	cmd.AddCommand(newRetryDrainCmd())
	return cmd
}

func newRetryDrainCmd() *cobra.Command {
	var recoverStuck bool

	c := &cobra.Command{
		Use:   "drain",
		Short: "Process every retry entry that is due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := loadServices()
			if err != nil {
				return err
			}
			ctx := context.Background()
			if recoverStuck {
				n, err := services.Reconciler.RecoverStuck(ctx, services.Config.Retry.StuckAfter)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "recovered %d stuck events\n", n)
			}
			res, err := services.Reconciler.DrainRetryQueue(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	c.Flags().BoolVar(&recoverStuck, "recover-stuck", true, "requeue events stuck in processing first")
	return c
}
