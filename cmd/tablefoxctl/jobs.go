package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TableFox/internal/pkg/cache"
	"github.com/ManuelReschke/TableFox/internal/pkg/env"
	"github.com/ManuelReschke/TableFox/internal/pkg/jobqueue"
)

// openQueue is replaced in tests.
var openQueue = func() *jobqueue.Queue {
	env.SetupEnvFile()
	return jobqueue.NewQueue(cache.GetClient(), 1)
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the notification job queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show pending, processing, delayed and dead job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes, err := openQueue().Sizes(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sizes)
		},
	})

	var limit int64
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List notifications that exhausted their delivery attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := openQueue().DeadLetters(context.Background(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
	dead.Flags().Int64Var(&limit, "limit", 20, "maximum number of jobs to list")
	cmd.AddCommand(dead)
	return cmd
}
