package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"bookstore/pkg/domain"
	"bookstore/pkg/store"
)

// grantStore is the slice of the store the CLI touches.
type grantStore interface {
	GrantAdmin(ctx context.Context, userID string) error
	RevokeAdmin(ctx context.Context, userID string) (bool, error)
	ListAdminGrants(ctx context.Context) ([]domain.AdminGrant, error)
	Close() error
}

type dbFlags struct {
	driver  string
	dsn     string
	dataDir string
	verbose bool
}

type openFunc func(dbFlags) (grantStore, error)

func openGormStore(f dbFlags) (grantStore, error) {
	return store.NewGormStore(store.DBConfig{
		Driver:  f.driver,
		DSN:     f.dsn,
		DataDir: f.dataDir,
		Debug:   f.verbose,
	})
}

func newRootCmd(open openFunc) *cobra.Command {
	flags := &dbFlags{}
	root := &cobra.Command{
		Use:   "bookstorectl",
		Short: "Bookstore operator tool",
		Long: `bookstorectl manages the bookstore database.

Admin access needs both an email on the service allow-list and a grant row
written by this tool.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.driver, "driver", envOr("DATABASE_DRIVER", store.DriverPostgres), "Database driver (postgres, mysql, sqlite)")
	root.PersistentFlags().StringVar(&flags.dsn, "db", os.Getenv("DATABASE_URL"), "Database connection URL")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", envOr("DATA_DIR", "."), "Directory for the default SQLite file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log SQL statements")

	root.AddCommand(newAdminsCmd(flags, open), newMigrateCmd(flags, open))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
