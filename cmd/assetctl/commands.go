package main

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"asset-tracker/internal/auth"
	"asset-tracker/internal/db"
	"asset-tracker/internal/user"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users, assets and sessions tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, gdb, cleanup, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := db.Migrate(gdb, cfg.CaseSensitiveUsernames()); err != nil {
				return err
			}
			cmd.Println("Migrations applied.")
			return nil
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var seedOpts db.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default accounts and sample assets",
		Long: `Creates an admin and a user account plus four sample assets.
Nothing is written when any user already exists.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, gdb, cleanup, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := db.Migrate(gdb, cfg.CaseSensitiveUsernames()); err != nil {
				return err
			}
			res, err := db.Seed(ctx, gdb, user.NewPBKDF2Hasher(cfg.Auth.HashIterations), seedOpts)
			if err != nil {
				return err
			}
			if res.Skipped {
				cmd.Println("Users already exist, nothing seeded.")
				return nil
			}
			cmd.Printf("Database seeded: %d users, %d assets.\n", res.Users, res.Assets)
			return nil
		},
	}
	cmd.Flags().StringVar(&seedOpts.AdminPassword, "admin-password", "", "password for the seeded admin account (default adminpass)")
	cmd.Flags().StringVar(&seedOpts.UserPassword, "user-password", "", "password for the seeded user account (default userpass)")
	return cmd
}

func newCreateAdminCmd(opts *rootOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an account with the admin role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, gdb, cleanup, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store := user.NewGormStore(gdb, cfg.CaseSensitiveUsernames())
			hasher := user.NewPBKDF2Hasher(cfg.Auth.HashIterations)
			u, err := db.CreateAdmin(ctx, store, hasher, user.PolicyFromConfig(cfg.Auth.PasswordPolicy), username, password)
			if err != nil {
				return err
			}
			cmd.Printf("Admin %q created with id %d.\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage server-side sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired and idle sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, gdb, cleanup, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := auth.NewGormSessionStore(gdb).DeleteExpired(ctx, time.Now().UTC(), cfg.Session.IdleTimeout.Duration)
			if err != nil {
				return oops.Code("SESSIONS_PRUNE_FAILED").Wrap(err)
			}
			cmd.Printf("Removed %d sessions.\n", removed)
			return nil
		},
	})
	return cmd
}
