package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"commenta.app/cloud/models"
	"commenta.app/cloud/storage"
	"github.com/spf13/cobra"
)

// withStore opens the configured database for a one-shot command.
func withStore(ctx context.Context, migrate bool, fn func(*storage.SQLStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	open := storage.Open
	if !migrate {
		open = storage.Connect
	}
	store, err := open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	return fn(store)
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	run := func(direction storage.MigrateDirection) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			if direction == storage.MigrateDown && steps == 0 {
				return errors.New("migrate down needs an explicit number of steps")
			}

			return withStore(cmd.Context(), false, func(store *storage.SQLStore) error {
				if err := store.Migrate(direction, steps); err != nil {
					return err
				}
				v, dirty, err := store.MigrationVersion()
				if err != nil {
					return err
				}
				cmd.Printf("Schema version: %d (dirty=%t)\n", v, dirty)
				return nil
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up [N]",
			Short: "Apply all or the next N migrations",
			Args:  cobra.MaximumNArgs(1),
			RunE:  run(storage.MigrateUp),
		},
		&cobra.Command{
			Use:   "down N",
			Short: "Roll back the last N migrations",
			Args:  cobra.ExactArgs(1),
			RunE:  run(storage.MigrateDown),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), false, func(store *storage.SQLStore) error {
					v, dirty, err := store.MigrationVersion()
					if err != nil {
						return err
					}
					cmd.Printf("Schema version: %d (dirty=%t)\n", v, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func newLicenseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Manage license keys",
	}

	setStatus := func(status string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), true, func(store *storage.SQLStore) error {
				err := store.SetLicenseStatus(cmd.Context(), args[0], status)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("license %q not found", args[0])
				}
				if err != nil {
					return err
				}
				cmd.Printf("License is now %s\n", status)
				return nil
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "revoke KEY",
			Short: "Revoke a license so validation fails",
			Args:  cobra.ExactArgs(1),
			RunE:  setStatus(models.StatusRevoked),
		},
		&cobra.Command{
			Use:   "activate KEY",
			Short: "Reactivate a revoked license",
			Args:  cobra.ExactArgs(1),
			RunE:  setStatus(models.StatusActive),
		},
	)
	return cmd
}

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator access",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant USER_ID",
		Short: "Grant admin access to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), true, func(store *storage.SQLStore) error {
				if err := store.GrantAdmin(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("Granted admin access to %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}
