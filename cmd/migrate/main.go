package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/config"
	"ayrene.com/backoffice/internal/migrate"
	"ayrene.com/backoffice/internal/obs"
	"ayrene.com/backoffice/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		obs.Logger().WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the back-office database schema and bootstrap data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if err := obs.Configure(loaded.Log.Level, loaded.Log.Format); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	conf := func() *config.Config { return cfg }

	root.AddCommand(
		newUpCmd(conf),
		newDownCmd(conf),
		newStatusCmd(conf),
		newBootstrapAdminCmd(conf),
		newIssueTokenCmd(conf),
	)
	return root
}

func withManager(cfg *config.Config, fn func(*migrate.Manager) error) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("AYRENE_PG_DSN is required for schema migrations")
	}
	mgr, err := migrate.NewManager(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer mgr.Close()
	return fn(mgr)
}

func newUpCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(conf(), func(mgr *migrate.Manager) error {
				if err := mgr.Up(cmd.Context()); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return printStatus(cmd, mgr)
			})
		},
	}
}

func newDownCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(conf(), func(mgr *migrate.Manager) error {
				if err := mgr.Down(cmd.Context()); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return printStatus(cmd, mgr)
			})
		},
	}
}

func newStatusCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(conf(), func(mgr *migrate.Manager) error {
				return printStatus(cmd, mgr)
			})
		},
	}
}

func printStatus(cmd *cobra.Command, mgr *migrate.Manager) error {
	st, err := mgr.Status()
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), st)
	return nil
}

func openAccounts(ctx context.Context, cfg *config.Config) (*auth.Service, store.Backend, error) {
	backend, err := store.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	accounts, err := auth.NewService(backend.Users(), tokens)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return accounts, backend, nil
}

func newBootstrapAdminCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the default administrator when no admin exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := conf()
			if cfg.Postgres.DSN == "" {
				return errors.New("AYRENE_PG_DSN is required to persist the administrator")
			}
			accounts, backend, err := openAccounts(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			created, err := accounts.EnsureDefaultAdmin(cmd.Context(), auth.AdminSeed{
				Name:     cfg.Admin.Name,
				Email:    cfg.Admin.Email,
				Password: cfg.Admin.Password,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "created administrator %s\n", cfg.Admin.Email)
			} else {
				fmt.Fprintln(out, "an administrator already exists")
			}
			return nil
		},
	}
}

func newIssueTokenCmd(conf func() *config.Config) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a 24h bearer token for an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, backend, err := openAccounts(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer backend.Close()

			token, exp, err := accounts.IssueToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to issue the token for")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
