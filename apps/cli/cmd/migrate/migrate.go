package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-contracts/platform/go/persistence"
)

// Command applies the embedded contracts DDL to a Postgres database.
func Command() *cobra.Command {
	var (
		databaseURL string
		timeout     time.Duration
	)

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Create the contracts table in Postgres",
		Long:  "Applies database/schema/contracts.sql. Statements are idempotent, so the command can be re-run safely.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url (or DATABASE_URL) is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.ApplyContractsSchema(ctx, pool); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "contracts schema applied")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	c.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout for the migration")
	return c
}
