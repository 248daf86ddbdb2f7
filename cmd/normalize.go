package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/powerprep/internal/matrix"
	"github.com/sells-group/powerprep/internal/normalize"
)

var (
	normalizeInput      string
	normalizeOutDir     string
	normalizeTrainStart int
	normalizeTrainEnd   int
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Standardize the combined matrix with leak-free training statistics",
	Long: `Computes per-entity mean and standard deviation from the training-window
years only, standardizes every row of the combined matrix with them, and
persists the parameter table so the result is reproducible without
recomputation. Zero-variance columns are forced to 0.

Examples:
  powerprep normalize --input out/sold_power_wide_2020_2023.csv
  powerprep normalize --input combined.csv --train-start 2020 --train-end 2021`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if normalizeTrainStart > 0 {
			cfg.Normalize.TrainStartYear = normalizeTrainStart
		}
		if normalizeTrainEnd > 0 {
			cfg.Normalize.TrainEndYear = normalizeTrainEnd
		}
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}
		if normalizeInput == "" {
			return eris.New("normalize: --input is required")
		}
		ctx := cmd.Context()

		store, run, err := beginAuditRun(ctx, "normalize")
		if err != nil {
			return err
		}
		defer store.Close()

		combined, err := matrix.ReadCSV(normalizeInput)
		if err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}

		win := normalize.Window{
			StartYear: cfg.Normalize.TrainStartYear,
			EndYear:   cfg.Normalize.TrainEndYear,
		}
		params, err := normalize.ComputeParams(combined, win)
		if err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}

		degenerate := 0
		for _, p := range params {
			if p.Degenerate {
				degenerate++
			}
		}
		if degenerate > 0 {
			zap.L().Warn("normalize: zero-variance columns forced to 0",
				zap.Int("columns", degenerate),
				zap.Int("train_start", win.StartYear),
				zap.Int("train_end", win.EndYear),
			)
		}

		normalized, err := normalize.Apply(combined, params)
		if err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}
		if err := normalized.ContainsColumns(combined.Columns); err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}

		outDir := normalizeOutDir
		if outDir == "" {
			outDir = filepath.Dir(normalizeInput)
		}
		base := strings.TrimSuffix(filepath.Base(normalizeInput), ".csv")
		normPath := filepath.Join(outDir, base+"_normalized.csv")
		paramsPath := filepath.Join(outDir, base+"_normalization_params.csv")

		if err := matrix.WriteCSV(normalized, normPath); err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}
		if err := normalize.WriteParams(params, paramsPath); err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}

		summary := fmt.Sprintf("entities=%d degenerate=%d window=%d-%d rows=%d",
			len(params), degenerate, win.StartYear, win.EndYear, normalized.Rows())
		if err := store.FinishRun(ctx, run.ID, "complete", summary); err != nil {
			zap.L().Warn("normalize: finish audit run", zap.Error(err))
		}

		zap.L().Info("normalize: complete",
			zap.String("run_id", run.ID),
			zap.String("normalized", normPath),
			zap.String("params", paramsPath),
			zap.Int("entities", len(params)),
			zap.Int("degenerate", degenerate),
		)
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeInput, "input", "", "combined wide matrix csv (required)")
	normalizeCmd.Flags().StringVar(&normalizeOutDir, "out", "", "output directory (default: alongside input)")
	normalizeCmd.Flags().IntVar(&normalizeTrainStart, "train-start", 0, "first training year (overrides config)")
	normalizeCmd.Flags().IntVar(&normalizeTrainEnd, "train-end", 0, "last training year (overrides config)")
	rootCmd.AddCommand(normalizeCmd)
}
