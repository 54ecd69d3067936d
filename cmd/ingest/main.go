package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/chesslog/internal/config"
	"github.com/freeeve/chesslog/internal/game"
	"github.com/freeeve/chesslog/internal/httpapi"
	"github.com/freeeve/chesslog/internal/ingest"
	"github.com/freeeve/chesslog/internal/logx"
	"github.com/freeeve/chesslog/internal/metrics"
	"github.com/freeeve/chesslog/internal/pgnlog"
	"github.com/freeeve/chesslog/internal/segment"
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
		watch       bool
		compression string
		onCorrupt   string
	)

	cmd := &cobra.Command{
		Use:   "ingest [archive.pgn.zst ...]",
		Short: "Ingest monthly game archives into game and perspective segments",
		Long: `Reads {dataset}_{YYYY}-{MM}.pgn[.zst] archives in chronological order and
writes normalized game segments plus the player-perspective view, keeping
cumulative per-player statistics in a snapshot between runs. Archives with a
completion manifest in the output directory are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg.Compression, err = segment.ParseCodec(compression); err != nil {
				return err
			}
			if cfg.OnCorruptSnapshot, err = stats.ParseCorruptPolicy(onCorrupt); err != nil {
				return err
			}
			if !watch && len(args) == 0 {
				return errors.New("no archives given (pass paths or --watch)")
			}
			return run(cmd.Context(), cfg, watch, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Output root directory")
	f.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Statistics snapshot path (default <output>/"+ingest.SnapshotName+")")
	f.IntVar(&cfg.SegmentSize, "segment-size", cfg.SegmentSize, "Records per output segment")
	f.StringVar(&compression, "compression", string(cfg.Compression), "Segment codec: zstd or lz4")
	f.IntVar(&cfg.MaxPlies, "max-plies", cfg.MaxPlies, "Truncate move text after N plies (0 = keep all)")
	f.BoolVar(&cfg.IncludeMoves, "include-moves", cfg.IncludeMoves, "Keep move text in output records")
	f.StringVar(&cfg.TournamentMarker, "tournament-marker", cfg.TournamentMarker, "Event substring marking tournament games")
	f.Uint64Var(&cfg.FingerprintSeed, "seed", cfg.FingerprintSeed, "Player fingerprint seed")
	f.BoolVar(&cfg.RandomFingerprints, "random-fingerprints", cfg.RandomFingerprints, "Seed fingerprints from the clock")
	f.StringVar(&onCorrupt, "on-corrupt-snapshot", string(cfg.OnCorruptSnapshot), "abort or reset when the snapshot is unreadable")
	f.BoolVar(&watch, "watch", false, "Poll the input directory instead of processing arguments")
	f.StringVar(&cfg.InputDir, "input", cfg.InputDir, "Directory polled with --watch")
	f.StringVar(&cfg.ProcessedDir, "processed", cfg.ProcessedDir, "Where --watch moves finished archives (default <input>/processed)")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Polling interval for --watch")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve /metrics, /healthz and /status on this address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, watch bool, args []string) error {
	logger := logx.NewLogger(logx.Options{Level: cfg.LogLevel, LogFile: cfg.LogFile})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lock, err := ingest.AcquireLock(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error().Err(err).Msg("release ingest lock")
		}
	}()
	logger.Info().Str("lock", lock.Path()).Msg("acquired ingest lock")

	m := metrics.New()
	p, err := ingest.NewPipeline(ingest.Config{
		OutputDir:    cfg.OutputDir,
		SnapshotPath: cfg.SnapshotPath,
		SegmentSize:  cfg.SegmentSize,
		Compression:  cfg.Compression,
		Parse: pgnlog.Options{
			TournamentMarker: cfg.TournamentMarker,
			MaxPlies:         cfg.MaxPlies,
		},
		Normalize: game.Options{
			SitePrefix:   cfg.SitePrefix,
			EvalMarker:   cfg.EvalMarker,
			IncludeMoves: cfg.IncludeMoves,
		},
		Stats: stats.Options{
			Seed:      cfg.FingerprintSeed,
			Random:    cfg.RandomFingerprints,
			OnCorrupt: cfg.OnCorruptSnapshot,
		},
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := serve(cfg.MetricsAddr, httpapi.NewRouter(m, p, logger), logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if watch {
		w, err := ingest.NewWatcher(ingest.WatchConfig{
			WatchDir:     cfg.InputDir,
			ProcessedDir: cfg.ProcessedDir,
			PollInterval: cfg.PollInterval,
			Logger:       logger,
		}, p)
		if err != nil {
			return err
		}
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("watcher stopped")
		return nil
	}

	paths := append([]string(nil), args...)
	sort.Slice(paths, func(i, j int) bool { return filepath.Base(paths[i]) < filepath.Base(paths[j]) })
	start := time.Now()
	results, err := p.Run(ctx, paths)

	var games int64
	var skipped int
	for _, res := range results {
		games += res.Games
		if res.Skipped {
			skipped++
		}
	}
	logger.Info().
		Int("archives", len(results)).
		Int("skipped", skipped).
		Int64("games", games).
		Dur("elapsed", time.Since(start)).
		Msg("ingest complete")
	return err
}

func serve(addr string, h http.Handler, logger zerolog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics and status")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
	return srv
}
