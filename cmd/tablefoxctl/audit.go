package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TableFox/internal/pkg/auditexport"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log tools",
	}
	cmd.AddCommand(newAuditExportCmd())
	return cmd
}

func newAuditExportCmd() *cobra.Command {
	var since, until string

	c := &cobra.Command{
		Use:   "export",
		Short: "Upload audit rows of a time window to the audit bucket as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := exportWindow(since, until, time.Now().UTC())
			if err != nil {
				return err
			}
			services, err := loadServices()
			if err != nil {
				return err
			}
			cfg := services.Config.Audit
			ctx := context.Background()
			client, err := auditexport.NewS3Client(ctx, cfg)
			if err != nil {
				return err
			}
			res, err := auditexport.NewExporter(services.Repos.Audit, client, cfg.Bucket, cfg.Prefix).Export(ctx, from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	c.Flags().StringVar(&since, "since", "", "window start, RFC3339 or YYYY-MM-DD (default: until minus 24h)")
	c.Flags().StringVar(&until, "until", "", "window end, RFC3339 or YYYY-MM-DD (default: now)")
	return c
}

func exportWindow(since, until string, now time.Time) (time.Time, time.Time, error) {
	to := now
	if until != "" {
		t, err := parseInstant(until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until: %w", err)
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if since != "" {
		t, err := parseInstant(since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --since: %w", err)
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--since must be before --until")
	}
	return from, to, nil
}

func parseInstant(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}
