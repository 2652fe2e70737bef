package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aiportal.dev/internal/config"
	"aiportal.dev/internal/migrate"
	"aiportal.dev/internal/store/pg"
)

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		migrateAction(configPath, "up", "Apply pending migrations", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			applied, err := m.Up(ctx)
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			if err == nil && len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
			}
			return err
		}),
		migrateAction(configPath, "down", "Roll back the last migration", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			name, err := m.Down(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
			return nil
		}),
		migrateAction(configPath, "status", "Show applied and pending migrations", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			applied, pending, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied  %s\n", name)
			}
			for _, name := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending  %s\n", name)
			}
			return nil
		}),
	)
	return cmd
}

func migrateAction(configPath *string, use, short string, run func(context.Context, *cobra.Command, *migrate.Manager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("database.dsn is required (PORTAL_DATABASE_DSN)")
			}
			db, err := pg.Open(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return run(ctx, cmd, migrate.NewManager(db, migrate.Files()))
		},
	}
}
