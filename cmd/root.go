package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bakerline/qtour/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "qtour",
	Short: "Plant-floor quality tour data collection",
	Long:  "Collects structured quality-inspection cycles per category, queues completed cycles while offline, and reconciles them with the remote data service without losing or duplicating a cycle.",
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
