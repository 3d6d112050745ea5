package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TableFox/internal/pkg/refund"
)

func newRefundCmd() *cobra.Command {
	var req refund.Request

	c := &cobra.Command{
		Use:   "refund",
		Short: "Refund part or all of a captured payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.PaymentID == 0 || req.AmountCents <= 0 || req.Reason == "" {
				return fmt.Errorf("--payment-id, a positive --amount and --reason are required")
			}
			req.Actor = operatorActor
			services, err := loadServices()
			if err != nil {
				return err
			}
			res, err := services.Refunds.Refund(context.Background(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	c.Flags().UintVar(&req.PaymentID, "payment-id", 0, "payment to refund")
	c.Flags().Int64Var(&req.AmountCents, "amount", 0, "amount in minor units")
	c.Flags().StringVar(&req.Reason, "reason", "", "reason recorded in the audit log")
	c.Flags().BoolVar(&req.CancelBooking, "cancel-booking", false, "also cancel the booking")
	return c
}
