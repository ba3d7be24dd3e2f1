package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "registry-scraper",
	Short: "Business registry crawler",
	Long:  "Acquires a challenge-gated search session, sweeps the business registry by entity-type queries, enriches records with registered-agent details, and writes deduplicated JSON.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
