package main

import (
	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/weekly-portfolio/internal/engine"
)

var (
	runEvalDate string
	runNoLegacy bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one evaluation period",
	Long: `Load the master snapshot, fetch a price for every holding and benchmark, recompute
returns and the normalized chart, then save, archive and copy the result.

Nothing is written unless every price was obtained.`,
	Example: `  portfolio run
  portfolio run --eval-date 2025-06-08
  portfolio run --config config/config.yaml --no-legacy`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer writeMetrics(cfg)

		eng, err := engine.NewFromConfig(cfg)
		if err != nil {
			return err
		}
		res, err := eng.Run(cmd.Context(), engine.Options{EvalDate: runEvalDate, SkipLegacy: runNoLegacy})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runEvalDate, "eval-date", "", "evaluation date YYYY-MM-DD (default: latest market date)")
	runCmd.Flags().BoolVar(&runNoLegacy, "no-legacy", false, "skip the per-period legacy copy")
}
