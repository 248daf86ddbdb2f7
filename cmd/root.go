package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/powerprep/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "powerprep",
	Short: "Hourly energy-sales preprocessing pipeline",
	Long:  "Reshapes per-provider spreadsheet extracts into continuous hourly wide matrices and applies leak-free training-window normalization for anomaly-detection models.",
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
