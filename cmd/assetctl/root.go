package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"asset-tracker/internal/config"
	"asset-tracker/internal/db"
)

const defaultTimeout = 30 * time.Second

type rootOptions struct {
	configFile string
	timeout    time.Duration
}

// NewRootCmd creates the root command for the assetctl CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "assetctl",
		Short:        "Administer the asset tracker database",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "config.json", "config file path")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "timeout for database operations (e.g., 30s, 1m)")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newCreateAdminCmd(opts))
	cmd.AddCommand(newSessionsCmd(opts))

	return cmd
}

// open loads the config and connects to the database. The returned cleanup
// cancels the context and closes the connection.
func (o *rootOptions) open(cmd *cobra.Command) (context.Context, *config.Config, *gorm.DB, func(), error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, nil, nil, oops.Code("CONFIG_INVALID").With("path", o.configFile).Wrap(err)
	}
	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	cleanup := func() {
		cancel()
		_ = db.Close(gdb)
	}
	return ctx, cfg, gdb, cleanup, nil
}
