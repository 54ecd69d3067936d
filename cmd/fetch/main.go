package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chesslog/internal/archive"
	"github.com/freeeve/chesslog/internal/config"
	"github.com/freeeve/chesslog/internal/logx"
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
	var from, to string

	cmd := &cobra.Command{
		Use:   "fetch --from YYYY-MM [--to YYYY-MM]",
		Short: "Download monthly rated archives from the public database",
		RunE: func(cmd *cobra.Command, args []string) error {
			months, err := monthRange(from, to)
			if err != nil {
				return err
			}
			return fetchAll(cmd.Context(), cfg, months)
		},
	}

	f := cmd.Flags()
	f.StringVar(&from, "from", "", "First month (YYYY-MM)")
	f.StringVar(&to, "to", "", "Last month (YYYY-MM), default --from")
	f.StringVar(&cfg.InputDir, "dir", cfg.InputDir, "Download directory")
	f.StringVar(&cfg.Variant, "variant", cfg.Variant, "Database variant")
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Database base URL")
	f.IntVar(&cfg.FetchConcurrency, "concurrency", cfg.FetchConcurrency, "Parallel downloads")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	cmd.MarkFlagRequired("from")
	return cmd
}

type month struct{ year, month int }

func monthRange(from, to string) ([]month, error) {
	if to == "" {
		to = from
	}
	start, err := time.Parse("2006-01", from)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	end, err := time.Parse("2006-01", to)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	var months []month
	for t := start; !t.After(end); t = t.AddDate(0, 1, 0) {
		months = append(months, month{t.Year(), int(t.Month())})
	}
	return months, nil
}

func fetchAll(ctx context.Context, cfg *config.Config, months []month) error {
	logger := logx.NewLogger(logx.Options{Level: cfg.LogLevel, LogFile: cfg.LogFile})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.InputDir, 0755); err != nil {
		return err
	}
	fetcher := archive.NewFetcher(logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.FetchConcurrency, 1))
	for _, m := range months {
		url := archive.URLFor(cfg.BaseURL, cfg.Variant, m.year, m.month)
		if _, err := os.Stat(filepath.Join(cfg.InputDir, path.Base(url))); err == nil {
			logger.Info().Str("url", url).Msg("already downloaded, skipping")
			continue
		}
		g.Go(func() error {
			_, err := fetcher.Fetch(gCtx, url, cfg.InputDir)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Int("months", len(months)).Str("dir", cfg.InputDir).Msg("fetch complete")
	return nil
}
