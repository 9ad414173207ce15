package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/config"
	"taskflow.dev/internal/migrate"
	"taskflow.dev/internal/store/pg"
	"taskflow.dev/migrations"
)

const migrateTimeout = 30 * time.Second

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migrateSeedCmd())
	return cmd
}

// withDB runs fn against the configured database under migrateTimeout.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger) error) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	db, err := pg.Open(cfg.Database.DSN, 2)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
	defer cancel()
	return fn(ctx, cfg, db, log)
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB, log *zap.Logger) error {
				applied, err := migrate.NewManager(db, migrations.FS).Up(ctx)
				for _, name := range applied {
					log.Info("migration applied", zap.String("name", name))
				}
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				if len(applied) == 0 {
					log.Info("schema is up to date")
				}
				return nil
			})
		},
	}
}

func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB, log *zap.Logger) error {
				name, err := migrate.NewManager(db, migrations.FS).Down(ctx)
				if errors.Is(err, migrate.ErrNothingApplied) {
					log.Info("nothing to roll back")
					return nil
				}
				if err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				log.Info("migration rolled back", zap.String("name", name))
				return nil
			})
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB, _ *zap.Logger) error {
				history, err := migrate.NewManager(db, migrations.FS).Status(ctx)
				if err != nil {
					return fmt.Errorf("migrate status: %w", err)
				}
				for _, name := range history {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

// migrateSeedCmd creates a demo organization and its admin through the regular signup path.
// Re-running it with the same email is a no-op.
func migrateSeedCmd() *cobra.Command {
	var in auth.RegisterInput
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo organization with an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger) error {
				store := account.NewPGStore(db)
				svc, err := auth.NewService(store.Users(), store.Organizations(),
					auth.WithTokenSecret(cfg.Auth.Secret),
					auth.WithIssuer(cfg.Auth.Issuer),
				)
				if err != nil {
					return err
				}
				sess, err := svc.Register(ctx, in)
				if errors.Is(err, account.ErrEmailTaken) {
					log.Info("seed account already exists", zap.String("email", in.Email))
					return nil
				}
				if err != nil {
					return fmt.Errorf("migrate seed: %w", err)
				}
				log.Info("seed account created",
					zap.String("email", sess.User.Email),
					zap.String("organization", sess.Organization.Name),
					zap.String("organization_id", sess.Organization.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.FirstName, "first-name", "Demo", "Admin first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "Admin", "Admin last name")
	cmd.Flags().StringVar(&in.Email, "email", "admin@taskflow.local", "Admin email")
	cmd.Flags().StringVar(&in.Password, "password", "changeme", "Admin password")
	cmd.Flags().StringVar(&in.OrganizationName, "organization", "Demo Organization", "Organization name")
	return cmd
}
