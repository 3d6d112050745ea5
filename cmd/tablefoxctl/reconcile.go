package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare booking state with the payment provider and repair drift",
	}
	cmd.AddCommand(newReconcileCheckCmd())
	cmd.AddCommand(newReconcileRepairCmd())
	return cmd
}

func newReconcileCheckCmd() *cobra.Command {
	var bookingID uint

	c := &cobra.Command{
		Use:   "check",
		Short: "Report drift for one booking without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bookingID == 0 {
				return fmt.Errorf("--booking-id is required")
			}
			services, err := loadServices()
			if err != nil {
				return err
			}
			report, err := services.Reconciler.Check(context.Background(), bookingID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	c.Flags().UintVar(&bookingID, "booking-id", 0, "booking to check")
	return c
}

func newReconcileRepairCmd() *cobra.Command {
	var bookingID uint

	c := &cobra.Command{
		Use:   "repair",
		Short: "Apply provider state to a drifted booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bookingID == 0 {
				return fmt.Errorf("--booking-id is required")
			}
			services, err := loadServices()
			if err != nil {
				return err
			}
			res, err := services.Reconciler.Repair(context.Background(), bookingID, operatorActor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	c.Flags().UintVar(&bookingID, "booking-id", 0, "booking to repair")
	return c
}
