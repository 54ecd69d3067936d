package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/chesslog/internal/config"
	"github.com/freeeve/chesslog/internal/ingest"
	"github.com/freeeve/chesslog/internal/logx"
	"github.com/freeeve/chesslog/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		output    string
		category  string
		reconcile []string
		saveTo    string
	)

	cmd := &cobra.Command{
		Use:   "export-stats",
		Short: "Dump the cumulative player statistics snapshot to CSV",
		Long: `Loads the statistics snapshot, optionally folds in snapshots built by
independent runs over other archives, and writes one CSV row per
(category, player).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logx.NewLogger(logx.Options{Level: cfg.LogLevel, LogFile: cfg.LogFile})
			snapshot := cfg.SnapshotPath
			if snapshot == "" {
				snapshot = filepath.Join(cfg.OutputDir, ingest.SnapshotName)
			}
			store, err := loadAll(logger, snapshot, reconcile)
			if err != nil {
				return err
			}
			if saveTo != "" {
				if err := store.Save(saveTo); err != nil {
					return err
				}
				logger.Info().Str("path", saveTo).Msg("saved reconciled snapshot")
			}

			out := io.Writer(os.Stdout)
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			rows, err := writeCSV(out, store, category)
			if err != nil {
				return err
			}
			logger.Info().Int("rows", rows).Str("output", output).Msg("export complete")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Ingest output root holding the snapshot")
	f.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Snapshot path (default <output-dir>/"+ingest.SnapshotName+")")
	f.StringVarP(&output, "output", "o", "stats.csv", "Output CSV file, - for stdout")
	f.StringVar(&category, "category", "", "Only export this category")
	f.StringSliceVar(&reconcile, "reconcile", nil, "Additional snapshots to fold in")
	f.StringVar(&saveTo, "save-reconciled", "", "Write the reconciled snapshot here")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	return cmd
}

func loadAll(logger zerolog.Logger, snapshot string, others []string) (*stats.Store, error) {
	opts := stats.Options{Logger: logger}
	store, err := stats.Load(snapshot, opts)
	if err != nil {
		return nil, err
	}
	for _, path := range others {
		other, err := stats.Load(path, opts)
		if err != nil {
			return nil, err
		}
		store.Reconcile(other)
		logger.Info().Str("snapshot", path).Msg("reconciled")
	}
	return store, nil
}

func writeCSV(w io.Writer, store *stats.Store, only string) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"category", "player", "games", "max_rating", "max_faced", "fingerprint"}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	var rows int
	for _, category := range store.Categories() {
		if only != "" && category != only {
			continue
		}
		for _, player := range store.Players(category) {
			c, _ := store.Lookup(category, player)
			row := []string{
				category,
				player,
				strconv.FormatInt(c.Games, 10),
				formatInt(c.MaxRating),
				formatInt(c.MaxFaced),
				"",
			}
			if c.Fingerprint != nil {
				row[5] = strconv.FormatFloat(*c.Fingerprint, 'f', -1, 64)
			}
			if err := writer.Write(row); err != nil {
				return rows, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("csv writer error: %w", err)
	}
	return rows, nil
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
