package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/powerprep/internal/audit"
	"github.com/sells-group/powerprep/internal/extract"
	"github.com/sells-group/powerprep/internal/fetcher"
	"github.com/sells-group/powerprep/internal/matrix"
	"github.com/sells-group/powerprep/internal/timeline"
)

var (
	transformInputs   []string
	transformOut      string
	transformCombined string
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Reshape raw extracts into continuous hourly wide matrices",
	Long: `Reads per-year spreadsheet extracts, unpivots the 24 hour columns into
hourly observations, pivots them into one column per (provider, market)
entity, reconstructs the complete leap-aware hourly timeline for each
year with bounded forward-filling, and merges all years into one
combined matrix.

Examples:
  # One file per year, outputs under ./out
  powerprep transform --input demanda_2020.xlsx --input demanda_2021.xlsx --out out`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("transform"); err != nil {
			return err
		}
		if len(transformInputs) == 0 {
			return eris.New("transform: at least one --input is required")
		}
		ctx := cmd.Context()

		if err := os.MkdirAll(transformOut, 0o755); err != nil {
			return eris.Wrap(err, "transform: create output dir")
		}

		store, run, err := beginAuditRun(ctx, "transform")
		if err != nil {
			return err
		}
		defer store.Close()

		man, err := runTransform(ctx, store, run.ID)
		if err != nil {
			_ = store.FinishRun(ctx, run.ID, "failed", err.Error())
			return err
		}

		summary := fmt.Sprintf("files=%d failed=%d observations=%d skips=%d conflicts=%d years=%d",
			len(man.Inputs), len(man.FailedInputs), man.Observations, man.Skips, man.Conflicts, len(man.Years))
		if err := store.FinishRun(ctx, run.ID, "complete", summary); err != nil {
			zap.L().Warn("transform: finish audit run", zap.Error(err))
		}

		zap.L().Info("transform: complete",
			zap.String("run_id", run.ID),
			zap.String("combined", man.Combined),
			zap.Int("observations", man.Observations),
			zap.Int("skips", man.Skips),
			zap.Int("conflicts", man.Conflicts),
		)
		return nil
	},
}

func init() {
	transformCmd.Flags().StringSliceVar(&transformInputs, "input", nil, "raw extract xlsx (repeatable, one per year)")
	transformCmd.Flags().StringVar(&transformOut, "out", "out", "output directory for matrix artifacts")
	transformCmd.Flags().StringVar(&transformCombined, "combined", "", "combined matrix filename (default sold_power_wide_<first>_<last>.csv)")
	rootCmd.AddCommand(transformCmd)
}

// yearArtifact summarizes one reconstructed per-year matrix.
type yearArtifact struct {
	Year    int    `yaml:"year"`
	Rows    int    `yaml:"rows"`
	Columns int    `yaml:"columns"`
	File    string `yaml:"file"`
}

// manifest is the durable run summary written next to the artifacts.
type manifest struct {
	RunID        string         `yaml:"run_id"`
	Inputs       []string       `yaml:"inputs"`
	FailedInputs []string       `yaml:"failed_inputs,omitempty"`
	Observations int            `yaml:"observations"`
	Skips        int            `yaml:"skips"`
	Conflicts    int            `yaml:"conflicts"`
	Years        []yearArtifact `yaml:"years"`
	Combined     string         `yaml:"combined"`
}

// runTransform executes the three stages: per-file extraction, per-year
// timeline reconstruction, and the multi-year merge. Input files are
// processed concurrently but results are collected in input order, so
// outputs are byte-identical across runs.
func runTransform(ctx context.Context, store *audit.Store, runID string) (*manifest, error) {
	opts := extract.Options{
		Schema: extract.Schema{
			DateColumn:     cfg.Transform.DateColumn,
			ProviderColumn: cfg.Transform.ProviderColumn,
			MarketColumn:   cfg.Transform.MarketColumn,
		},
		HeaderLookahead: cfg.Transform.HeaderLookahead,
	}

	// Stage 1: extract every input file.
	results := make([]*extract.Result, len(transformInputs))
	fileErrs := make([]error, len(transformInputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Transform.Workers)
	for i, path := range transformInputs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetIndex: cfg.Transform.SheetIndex})
			if err != nil {
				fileErrs[i] = err
				return nil
			}
			res, err := extract.FromRows(rows, opts)
			if err != nil {
				fileErrs[i] = err // ErrSchema/ErrKey fail the file, not the run
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "transform: extract inputs")
	}

	man := &manifest{RunID: runID, Inputs: transformInputs}
	var allObs []extract.Observation
	for i, path := range transformInputs {
		if fileErrs[i] != nil {
			man.FailedInputs = append(man.FailedInputs, path)
			zap.L().Error("transform: input failed", zap.String("file", path), zap.Error(fileErrs[i]))
			recordAudit(ctx, store, runID, audit.KindSkip, path, fileErrs[i].Error())
			continue
		}
		res := results[i]
		allObs = append(allObs, res.Observations...)
		man.Skips += len(res.Skips)
		for _, s := range res.Skips {
			recordAudit(ctx, store, runID, audit.KindSkip, path,
				fmt.Sprintf("row %d: %s", s.Row, s.Reason))
		}
		zap.L().Info("transform: extracted",
			zap.String("file", path),
			zap.Int("observations", len(res.Observations)),
			zap.Int("skips", len(res.Skips)),
		)
	}
	if len(man.FailedInputs) == len(transformInputs) {
		return nil, eris.New("transform: all input files failed")
	}
	man.Observations = len(allObs)

	// Stage 2: reconstruct each observed year on its canonical index.
	byYear := map[int][]extract.Observation{}
	for _, o := range allObs {
		byYear[o.TS.Year()] = append(byYear[o.TS.Year()], o)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	perYear := make([]*matrix.Wide, len(years))
	conflicts := make([][]extract.Conflict, len(years))

	g2, g2ctx := errgroup.WithContext(ctx)
	g2.SetLimit(cfg.Transform.Workers)
	for yi, year := range years {
		g2.Go(func() error {
			if g2ctx.Err() != nil {
				return g2ctx.Err()
			}
			sparse, dups := extract.Pivot(byYear[year])
			full, err := timeline.Reconstruct(sparse, year)
			if err != nil {
				return err
			}
			timeline.FillShortGaps(full, cfg.Transform.GapFillHours)

			out := filepath.Join(transformOut, fmt.Sprintf("sold_power_wide_%d.csv", year))
			if err := matrix.WriteCSV(full, out); err != nil {
				return err
			}

			perYear[yi] = full
			conflicts[yi] = dups
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return nil, eris.Wrap(err, "transform: reconstruct years")
	}

	for yi, year := range years {
		man.Conflicts += len(conflicts[yi])
		for _, c := range conflicts[yi] {
			recordAudit(ctx, store, runID, audit.KindConflict,
				fmt.Sprintf("year %d", year),
				fmt.Sprintf("%s %s summed", c.TS.Format(matrix.TimeLayout), c.Key))
		}
		man.Years = append(man.Years, yearArtifact{
			Year:    year,
			Rows:    perYear[yi].Rows(),
			Columns: len(perYear[yi].Columns),
			File:    fmt.Sprintf("sold_power_wide_%d.csv", year),
		})
	}

	// Stage 3: merge all years into the combined matrix.
	combined, err := matrix.Merge(perYear)
	if err != nil {
		return nil, err
	}
	name := transformCombined
	if name == "" {
		name = fmt.Sprintf("sold_power_wide_%d_%d.csv", years[0], years[len(years)-1])
	}
	if err := matrix.WriteCSV(combined, filepath.Join(transformOut, name)); err != nil {
		return nil, err
	}
	man.Combined = name

	data, err := yaml.Marshal(man)
	if err != nil {
		return nil, eris.Wrap(err, "transform: marshal manifest")
	}
	if err := os.WriteFile(filepath.Join(transformOut, "manifest.yaml"), data, 0o644); err != nil {
		return nil, eris.Wrap(err, "transform: write manifest")
	}

	return man, nil
}

func recordAudit(ctx context.Context, store *audit.Store, runID, kind, source, detail string) {
	if err := store.RecordEvent(ctx, runID, kind, source, detail); err != nil {
		zap.L().Warn("audit: record event", zap.Error(err))
	}
}
