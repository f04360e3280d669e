package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"caissepro/backend/internal/config"
	"caissepro/backend/internal/logger"
	pgstore "caissepro/backend/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd.Context(), config.Load(), func(pg *pgstore.Store) error {
				return pgstore.MigrateUp(pg.DB())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, all of them when steps is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseSteps(args)
			if err != nil {
				return err
			}
			return runMigration(cmd.Context(), config.Load(), func(pg *pgstore.Store) error {
				return pgstore.MigrateDown(pg.DB(), steps)
			})
		},
	})

	return cmd
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", args[0])
	}
	return steps, nil
}

func runMigration(ctx context.Context, cfg config.Config, apply func(*pgstore.Store) error) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := apply(pg); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log := logger.WithComponent("migrate")
	log.Info().Msg("migrations done")
	return nil
}
