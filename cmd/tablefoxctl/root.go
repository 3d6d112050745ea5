package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/bootstrap"
	"github.com/ManuelReschke/TableFox/internal/pkg/cache"
	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/database"
	"github.com/ManuelReschke/TableFox/internal/pkg/env"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
)

// operatorActor is recorded in audit rows written from the CLI.
const operatorActor = "operator:cli"

// loadServices is replaced in tests.
var loadServices = openServices

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tablefoxctl",
		Short:         "Operator tools for the TableFox reservation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newReconcileCmd())
	root.AddCommand(newRetryCmd())
	root.AddCommand(newLocksCmd())
	root.AddCommand(newRefundCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newJobsCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openServices connects to the database (and Redis when locks live there)
// and wires the services without a job queue: notifications go out inline.
func openServices() (*bootstrap.Services, error) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	database.SetupDatabase()

	provider, err := bootstrap.NewProvider(cfg.Payment)
	if err != nil {
		return nil, err
	}
	sender, err := notify.NewSender(cfg.Notify)
	if err != nil {
		return nil, err
	}

	lockStore, err := bootstrap.NewLockStore(cfg.Lock, database.DB, redisIfNeeded(cfg))
	if err != nil {
		return nil, err
	}
	return bootstrap.NewServices(cfg, repository.NewRepositories(database.DB), lockStore, provider, notify.Inline{Sender: sender})
}

func redisIfNeeded(cfg *config.Config) *redis.Client {
	if cfg.Lock.Store != "redis" {
		return nil
	}
	return cache.GetClient()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
