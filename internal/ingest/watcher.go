package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesslog/internal/archive"
)

// WatchConfig configures a Watcher.
type WatchConfig struct {
	WatchDir     string         // directory to poll for archives
	ProcessedDir string         // completed archives are moved here, default WatchDir/processed
	PollInterval time.Duration  // default 10s
	Logger       zerolog.Logger
}

// Watcher polls a directory and feeds new archives to a pipeline one at a
// time, in name order.
type Watcher struct {
	cfg WatchConfig
	p   *Pipeline
	log zerolog.Logger
}

// NewWatcher returns nil when no watch directory is configured.
func NewWatcher(cfg WatchConfig, p *Pipeline) (*Watcher, error) {
	if cfg.WatchDir == "" {
		return nil, nil
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if err := os.MkdirAll(cfg.WatchDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
		return nil, err
	}
	return &Watcher{cfg: cfg, p: p, log: cfg.Logger}, nil
}

// Run polls until ctx is cancelled or an archive fails. A failed archive is
// left in place so the next start retries it.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("archive watcher started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll processes every archive currently in the watch directory and returns
// how many were handled.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	files, err := Pending(w.cfg.WatchDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	w.log.Info().Int("files", len(files)).Msg("found archives to process")

	var handled int
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		src := filepath.Join(w.cfg.WatchDir, name)
		if _, err := w.p.ProcessArchive(ctx, src); err != nil {
			return handled, err
		}
		dst := filepath.Join(w.cfg.ProcessedDir, name)
		if err := os.Rename(src, dst); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("move to processed failed")
		} else {
			w.log.Info().Str("file", name).Msg("moved to processed")
		}
		handled++
	}
	return handled, nil
}

// Pending lists the archive files of dir sorted by name, which for the
// {dataset}_{YYYY}-{MM} convention is chronological.
func Pending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !archive.IsArchive(e.Name()) {
			continue
		}
		if _, err := archive.ParseName(e.Name()); err != nil {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
