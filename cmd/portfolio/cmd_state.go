package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
	"github.com/Rajchodisetti/weekly-portfolio/internal/portfolio"
	"github.com/Rajchodisetti/weekly-portfolio/internal/store"
)

var seedFrom string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the master snapshot and check its invariants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		snap, err := store.New(cfg.State).Load()
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"path":          cfg.State.Path,
			"period":        snap.PeriodID(),
			"current_date":  snap.Meta.CurrentDate,
			"current_value": snap.PortfolioTotals.CurrentValue,
			"holdings":      len(snap.Holdings),
			"benchmarks":    snap.BenchmarkKeys(),
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the inception snapshot from a YAML description",
	Example: `  portfolio seed --from config/seed.yaml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st := store.New(cfg.State)
		if st.Exists() {
			return fmt.Errorf("snapshot already exists at %s", st.Path)
		}

		in, err := readInception(seedFrom, cfg.Benchmarks)
		if err != nil {
			return err
		}

		snap, err := portfolio.Seed(in)
		if err != nil {
			return err
		}
		if err := st.Save(snap); err != nil {
			return err
		}
		observ.Log("snapshot_seeded", map[string]any{
			"path":            st.Path,
			"inception_date":  snap.Meta.InceptionDate,
			"inception_value": snap.Meta.InceptionValue,
		})
		return nil
	},
}

// readInception decodes the seed file. A benchmark without chart_key takes the
// configured one; when neither sets it the snapshot default applies.
func readInception(path string, benchmarks map[string]config.Benchmark) (portfolio.Inception, error) {
	var in portfolio.Inception
	b, err := os.ReadFile(path)
	if err != nil {
		return in, err
	}
	if err := yaml.Unmarshal(b, &in); err != nil {
		return in, fmt.Errorf("parse %s: %w", path, err)
	}
	for key, bm := range benchmarks {
		sb, ok := in.Benchmarks[key]
		if ok && sb.ChartKey == "" {
			sb.ChartKey = bm.ChartKey
			in.Benchmarks[key] = sb
		}
	}
	return in, nil
}

func init() {
	rootCmd.AddCommand(validateCmd, seedCmd)
	seedCmd.Flags().StringVar(&seedFrom, "from", "config/seed.yaml", "inception description")
}
