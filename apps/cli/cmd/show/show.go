package show

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/setup"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
)

// Command prints the stored contract for a property as JSON.
func Command() *cobra.Command {
	var propertyID string

	c := &cobra.Command{
		Use:   "show",
		Short: "Print the contract stored for a property",
		RunE: func(cmd *cobra.Command, args []string) error {
			if propertyID == "" {
				return errors.New("--property-id is required")
			}

			cfg, err := setup.LoadConfig()
			if err != nil {
				return err
			}

			logger, err := platformlogging.NewLogger(platformlogging.Config{
				Component: "contracts-cli",
				Service:   cfg.ServiceNamespace,
				Level:     cfg.LogLevel,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()

			backends, err := setup.Build(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("init backends: %w", err)
			}
			defer func() {
				if err := backends.Close(context.Background()); err != nil {
					logger.Error("close backends", zap.Error(err))
				}
			}()

			contract, err := backends.Service.Get(ctx, propertyID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(contract)
		},
	}

	c.Flags().StringVar(&propertyID, "property-id", "", "property identifier")
	return c
}
