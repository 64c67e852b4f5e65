// Package main implements the noema CLI, the external entry point for the
// reasoning kernel: a rules-file assert command, a serve command exposing
// the WebSocket broadcast surface, and a query command for one-shot pattern
// lookups. Grounded on codeNERD's cmd/nerd/main.go rootCmd/init()/
// PersistentPreRunE shape, split one file per command the way that package
// splits cmd_*.go files.
package main

import (
	"fmt"
	"os"
	"time"

	"noema/internal/config"
	"noema/internal/logging"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	rulesDir   string
)

var rootCmd = &cobra.Command{
	Use:   "noema",
	Short: "noema - a probabilistic forward/backward reasoning engine over KIF assertions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(debug); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Debug = debug
	if rulesDir != "" {
		cfg.RulesDir = rulesDir
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules-dir", "", "rules directory to watch (overrides config)")

	assertCmd.Flags().DurationVar(&assertTimeout, "timeout", 10*time.Second, "time to wait for the commit queue to drain")

	serveCmd.Flags().StringVar(&serveWSAddr, "ws", ":8181", "address to serve the WebSocket broadcast endpoint on")

	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 5*time.Second, "time to wait for a running kernel's rules to settle before querying")

	rootCmd.AddCommand(assertCmd, serveCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
