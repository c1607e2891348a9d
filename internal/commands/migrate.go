package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wallet-back/internal/database"
	"github.com/wallet-back/pkg/config"
	"github.com/wallet-back/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the trigger audit log schema",
	Long: `Create the MySQL schema used by the trigger audit log.

The server records every auto-sync trigger attempt in MySQL when the
audit log is enabled. Run this once before the first start, or after
upgrading.

Examples:
  wallet-back migrate   # Apply the schema`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	mysqlDB, err := database.NewMySQLClient(&cfg.MySQL, cfg.GetMySQLDSN(), log)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	defer mysqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := mysqlDB.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("Migrations applied")
	return nil
}
