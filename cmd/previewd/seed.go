package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livefir/editpreview/internal/content"
)

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load documents from a YAML file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		docs, err := content.LoadYAMLFile(args[0])
		if err != nil {
			return err
		}
		store, err := content.Open(cmd.Context(), cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, doc := range docs {
			if err := store.Save(cmd.Context(), doc); err != nil {
				return fmt.Errorf("saving %s: %w", doc.ID, err)
			}
			logger.Info("document seeded", zap.String("id", doc.ID), zap.String("user", doc.UserID))
			fmt.Fprintf(cmd.OutOrStdout(), "%s/?doc=%s\n", previewPrefix, doc.ID)
		}
		return nil
	},
}

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		// Open applies pending migrations.
		store, err := content.Open(cmd.Context(), cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if migrateStatus {
			return content.MigrationStatus(cmd.Context(), store.DB(), logger)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print migration status after migrating")
	rootCmd.AddCommand(seedCmd, migrateCmd)
}
