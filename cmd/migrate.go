package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the database schema if it is missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			driver := appInstance.Config().Store.Driver
			m, ok := appInstance.GetStore().(migrator)
			if !ok {
				appInstance.GetLogger().Info("store has no schema", zap.String("store", driver))
				return nil
			}
			if err := m.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate %s store: %w", driver, err)
			}
			appInstance.GetLogger().Info("schema is up to date", zap.String("store", driver))
			return nil
		},
	}
}
