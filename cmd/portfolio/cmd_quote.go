package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/weekly-portfolio/internal/adapters"
	"github.com/Rajchodisetti/weekly-portfolio/internal/engine"
)

var quoteClass string

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Fetch one quote through the provider chain",
	Example: `  portfolio quote AAPL
  portfolio quote BTC --class crypto
  portfolio quote ^SPX --class index`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer writeMetrics(cfg)

		class, err := adapters.ParseAssetClass(quoteClass)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return &engine.ConfigError{Err: err}
		}
		providers, err := adapters.BuildProviders(cfg)
		if err != nil {
			return err
		}
		chain, err := adapters.NewChainFromConfig(cfg, providers)
		if err != nil {
			return err
		}

		symbol := strings.ToUpper(args[0])
		target := engine.Target{Label: symbol, Symbol: symbol, Class: class}
		q, attempts, err := chain.Fetch(cmd.Context(), symbol, class)
		if err != nil {
			return err
		}
		return printJSON(engine.NewReportEntry(target, q, attempts))
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().StringVar(&quoteClass, "class", "equity", "asset class: equity, crypto or index")
}
