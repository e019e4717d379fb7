package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Weekly portfolio price ingestion and recompute",
	Long: `portfolio fetches the latest closes for every holding and benchmark through a
paced, retried provider failover chain, recomputes weekly and since-inception returns,
and atomically replaces the master snapshot.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the JSON result only
	observ.SetOutput(os.Stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, or falls back to defaults when the default
// path does not exist.
func loadConfig(cmd *cobra.Command) (config.Root, error) {
	var cfg config.Root
	if _, err := os.Stat(cfgPath); err != nil && !cmd.Flags().Changed("config") {
		if err := config.LoadDotEnv(); err != nil {
			return cfg, err
		}
		cfg = config.Default()
		cfg.ResolveCredentials(os.Getenv)
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	observ.SetLevel(level)
	observ.Log("startup", map[string]any{
		"config":       cfgPath,
		"state_path":   cfg.State.Path,
		"stale_policy": cfg.StalePolicy,
		"providers":    cfg.ChainedProviders(),
	})
	return cfg, nil
}

func writeMetrics(cfg config.Root) {
	if cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := observ.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		observ.Warn("metrics_write_failed", map[string]any{"path": cfg.Metrics.TextfilePath, "error": err.Error()})
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
