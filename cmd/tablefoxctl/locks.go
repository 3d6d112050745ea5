package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Slot lock maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reap",
		Short: "Delete expired slot locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := loadServices()
			if err != nil {
				return err
			}
			n, err := services.Locks.Reap(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d expired locks\n", n)
			return nil
		},
	})
	return cmd
}
