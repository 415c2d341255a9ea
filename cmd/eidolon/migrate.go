package main

import (
	"fmt"

	"github.com/eidolon-project/eidolon/internal/config"
	"github.com/eidolon-project/eidolon/internal/store"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the scan-config store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("EIDOLON_CONFIG_DATABASE_URL is not set")
			}

			db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
			if err != nil {
				return fmt.Errorf("connect to config database: %w", err)
			}

			if err := store.Migrate(db); err != nil {
				return fmt.Errorf("migrate config store: %w", err)
			}

			cmd.Println("scanner_configs table migrated")
			return nil
		},
	}
}
