// Package ingest drives archives through the pipeline: assemble, normalize,
// record statistics, expand perspectives and write segments.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/freeeve/chesslog/internal/archive"
	"github.com/freeeve/chesslog/internal/game"
	"github.com/freeeve/chesslog/internal/metrics"
	"github.com/freeeve/chesslog/internal/perspective"
	"github.com/freeeve/chesslog/internal/pgnlog"
	"github.com/freeeve/chesslog/internal/segment"
	"github.com/freeeve/chesslog/internal/stats"
)

// Output tables, one subdirectory each under the output root.
const (
	TableGames        = "games"
	TablePerspectives = "perspectives"
)

// SnapshotName is the statistics snapshot file used when none is configured.
const SnapshotName = "stats.json.zst"

// ErrMonthTaken is returned for an archive whose month was already ingested
// into the output root from a different dataset. Segments are named by month
// only, so each dataset needs its own output root.
var ErrMonthTaken = errors.New("month already ingested from another dataset")

// Config configures a Pipeline.
type Config struct {
	OutputDir     string        // output root, required
	SnapshotPath  string        // default OutputDir/SnapshotName
	SegmentSize   int           // records per segment, default segment.DefaultMaxRecords
	Compression   segment.Codec // default zstd
	Parse         pgnlog.Options
	Normalize     game.Options
	Stats         stats.Options
	ProgressEvery time.Duration // default 10s
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics // optional
}

// Result summarizes one archive.
type Result struct {
	Archive      string
	Skipped      bool
	Games        int64
	Perspectives int64
	Segments     map[string][]string
	Players      uint32
	Elapsed      time.Duration
}

// Status is a point-in-time view of a pipeline, safe to take from another
// goroutine.
type Status struct {
	RunID        string    `json:"run_id"`
	Started      time.Time `json:"started"`
	Current      string    `json:"current,omitempty"`
	CurrentGames int64     `json:"current_games"`
	Done         int       `json:"done"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	LastError    string    `json:"last_error,omitempty"`
}

// Pipeline owns the statistics store for its lifetime and processes archives
// strictly one at a time.
type Pipeline struct {
	cfg   Config
	store *stats.Store
	log   zerolog.Logger
	runID string

	mu       sync.Mutex
	status   Status
	curGames atomic.Int64
}

// NewPipeline loads the statistics snapshot and prepares the output root.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("ingest: output directory required")
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = filepath.Join(cfg.OutputDir, SnapshotName)
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = segment.DefaultMaxRecords
	}
	if cfg.Compression == "" {
		cfg.Compression = segment.CodecZstd
	}
	if cfg.Parse.TournamentMarker == "" {
		cfg.Parse.TournamentMarker = pgnlog.DefaultTournamentMarker
	}
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 10 * time.Second
	}
	cfg.Stats.Logger = cfg.Logger
	for _, dir := range []string{cfg.OutputDir, filepath.Dir(cfg.SnapshotPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	log := cfg.Logger.With().Str("run", runID).Logger()

	store, err := stats.Load(cfg.SnapshotPath, cfg.Stats)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics != nil {
		cfg.Metrics.Players.Set(float64(store.Len(stats.AllCategory)))
	}
	log.Info().
		Str("output_dir", cfg.OutputDir).
		Str("snapshot", cfg.SnapshotPath).
		Int("segment_size", cfg.SegmentSize).
		Str("compression", string(cfg.Compression)).
		Msg("pipeline ready")

	return &Pipeline{
		cfg:    cfg,
		store:  store,
		log:    log,
		runID:  runID,
		status: Status{RunID: runID, Started: time.Now().UTC()},
	}, nil
}

// Status returns the current progress.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	if st.Current != "" {
		st.CurrentGames = p.curGames.Load()
	}
	return st
}

func (p *Pipeline) setStatus(fn func(*Status)) {
	p.mu.Lock()
	fn(&p.status)
	p.mu.Unlock()
}

// Store returns the statistics store.
func (p *Pipeline) Store() *stats.Store {
	return p.store
}

// RunID identifies this pipeline in logs and manifests.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run processes archives in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, paths []string) ([]Result, error) {
	var results []Result
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.ProcessArchive(ctx, path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessArchive ingests one archive file. Archives with a completion
// manifest are skipped.
func (p *Pipeline) ProcessArchive(ctx context.Context, path string) (Result, error) {
	id, err := archive.ParseName(path)
	if err != nil {
		return Result{}, err
	}
	if done, err := p.completed(id); err != nil || done {
		return Result{Archive: id.String(), Skipped: done}, err
	}

	r, err := archive.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer r.Close()
	return p.process(ctx, id, r)
}

// ProcessStream ingests the decompressed content of archive id. Whatever the
// outcome, buffered segments are flushed and the statistics snapshot is
// saved before returning; the manifest is written only on success.
func (p *Pipeline) ProcessStream(ctx context.Context, id archive.ID, r io.Reader) (Result, error) {
	if done, err := p.completed(id); err != nil || done {
		return Result{Archive: id.String(), Skipped: done}, err
	}
	return p.process(ctx, id, r)
}

// process runs one archive whose manifest is known to be absent.
func (p *Pipeline) process(ctx context.Context, id archive.ID, r io.Reader) (Result, error) {
	res := Result{Archive: id.String()}
	prefix := id.Prefix()
	log := p.log.With().Str("archive", id.String()).Logger()

	gameSink, err := segment.NewFileSink[game.Record](p.tableDir(TableGames), p.cfg.Compression)
	if err != nil {
		return res, err
	}
	perspSink, err := segment.NewFileSink[perspective.Record](p.tableDir(TablePerspectives), p.cfg.Compression)
	if err != nil {
		return res, err
	}
	for _, table := range []string{TableGames, TablePerspectives} {
		n, err := segment.RemoveSegments(p.tableDir(table), prefix)
		if err != nil {
			return res, fmt.Errorf("remove stale segments: %w", err)
		}
		if n > 0 {
			log.Warn().Str("table", table).Int("files", n).Msg("removed segments of incomplete run")
		}
	}

	games := segment.NewWriter[game.Record](gameSink, id.Year, id.Month, p.cfg.SegmentSize)
	persp := segment.NewWriter[perspective.Record](perspSink, id.Year, id.Month, p.cfg.SegmentSize)
	games.OnFlush(p.flushed(log, TableGames))
	persp.OnFlush(p.flushed(log, TablePerspectives))

	log.Info().Msg("archive ingest started")
	p.curGames.Store(0)
	p.setStatus(func(st *Status) { st.Current = id.String() })
	start := time.Now()
	reader := pgnlog.NewReader(r, p.cfg.Parse)
	players := bloom.NewWithEstimates(1_000_000, 0.001)

	runErr := p.consume(ctx, log, reader, games, persp, players, &res)

	// flush-then-fail: partial segments and counters are persisted either way
	var flushErrs []error
	if err := games.Flush(); err != nil {
		flushErrs = append(flushErrs, err)
	}
	if err := persp.Flush(); err != nil {
		flushErrs = append(flushErrs, err)
	}
	if err := p.store.Save(p.cfg.SnapshotPath); err != nil {
		flushErrs = append(flushErrs, fmt.Errorf("save statistics: %w", err))
	}

	res.Elapsed = time.Since(start)
	res.Segments = map[string][]string{
		TableGames:        games.Segments(),
		TablePerspectives: persp.Segments(),
	}
	if m := p.cfg.Metrics; m != nil {
		m.BytesRead.Add(float64(reader.BytesRead()))
		m.Players.Set(float64(p.store.Len(stats.AllCategory)))
	}

	if runErr != nil || len(flushErrs) > 0 {
		err := errors.Join(append([]error{runErr}, flushErrs...)...)
		p.failed(err)
		log.Error().Err(err).
			Int64("games", res.Games).
			Int("segments", len(res.Segments[TableGames])+len(res.Segments[TablePerspectives])).
			Msg("archive ingest failed")
		return res, fmt.Errorf("archive %s: %w", id, err)
	}

	manifest := segment.Manifest{
		Archive:         id.String(),
		RunID:           p.runID,
		Games:           res.Games,
		Perspectives:    res.Perspectives,
		Segments:        res.Segments,
		DistinctPlayers: res.Players,
		CompletedAt:     time.Now().UTC(),
	}
	if err := segment.WriteManifest(p.cfg.OutputDir, prefix, manifest); err != nil {
		p.failed(err)
		return res, fmt.Errorf("archive %s: write manifest: %w", id, err)
	}
	p.cfg.Metrics.ArchiveDone(metrics.StatusDone)
	p.setStatus(func(st *Status) {
		st.Current = ""
		st.Done++
	})

	log.Info().
		Int64("games", res.Games).
		Int64("perspectives", res.Perspectives).
		Uint32("players", res.Players).
		Str("bytes", humanize.Bytes(uint64(reader.BytesRead()))).
		Dur("elapsed", res.Elapsed).
		Float64("games_per_sec", float64(res.Games)/res.Elapsed.Seconds()).
		Msg("archive ingest complete")
	return res, nil
}

// consume runs the sequential pass over one archive and returns the first
// fatal error.
func (p *Pipeline) consume(
	ctx context.Context,
	log zerolog.Logger,
	reader *pgnlog.Reader,
	games *segment.Writer[game.Record],
	persp *segment.Writer[perspective.Record],
	players *bloom.BloomFilter,
	res *Result,
) error {
	var merger perspective.Merger
	var ready []perspective.Record
	start := time.Now()
	lastLog := start

	emit := func(recs []perspective.Record) error {
		res.Perspectives += int64(len(recs))
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.Perspectives.Add(float64(len(recs)))
		}
		return persp.Append(recs...)
	}

	var err error
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		var raw *game.Raw
		raw, err = reader.Next()
		if errors.Is(err, io.EOF) {
			err = nil
			break
		}
		if err != nil {
			break
		}
		var rec game.Record
		rec, err = game.Normalize(*raw, p.cfg.Normalize)
		if err != nil {
			err = fmt.Errorf("line %d: %w", raw.Line, err)
			break
		}
		if err = games.Append(rec); err != nil {
			break
		}

		white, black := perspective.Expand(rec, p.store)
		res.Games++
		p.curGames.Add(1)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.Games.Inc()
		}
		for _, name := range [2]*string{rec.White, rec.Black} {
			if name != nil && !players.TestOrAddString(*name) {
				res.Players++
			}
		}

		merger.Push(white, black)
		ready = merger.Ready(ready[:0])
		if err = emit(ready); err != nil {
			break
		}

		if time.Since(lastLog) > p.cfg.ProgressEvery {
			elapsed := time.Since(start)
			log.Info().
				Int64("games", res.Games).
				Str("bytes", humanize.Bytes(uint64(reader.BytesRead()))).
				Float64("games_per_sec", float64(res.Games)/elapsed.Seconds()).
				Msg("ingest progress")
			lastLog = time.Now()
		}
	}

	// records already counted in the store are always written out
	if derr := emit(merger.Drain(ready[:0])); derr != nil {
		return errors.Join(err, derr)
	}
	return err
}

func (p *Pipeline) completed(id archive.ID) (bool, error) {
	m, err := segment.ReadManifest(p.cfg.OutputDir, id.Prefix())
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	if m.Archive != id.String() {
		return false, fmt.Errorf("%w: %s holds %s, refusing %s", ErrMonthTaken, p.cfg.OutputDir, m.Archive, id)
	}
	p.cfg.Metrics.ArchiveDone(metrics.StatusSkipped)
	p.setStatus(func(st *Status) { st.Skipped++ })
	p.log.Info().
		Str("archive", id.String()).
		Str("completed_by", m.RunID).
		Time("completed_at", m.CompletedAt).
		Msg("archive already ingested, skipping")
	return true, nil
}

func (p *Pipeline) failed(err error) {
	p.cfg.Metrics.ArchiveDone(metrics.StatusFailed)
	p.setStatus(func(st *Status) {
		st.Current = ""
		st.Failed++
		st.LastError = err.Error()
	})
}

func (p *Pipeline) flushed(log zerolog.Logger, table string) func(string, int) {
	return func(name string, n int) {
		p.cfg.Metrics.SegmentFlushed(table, n)
		log.Debug().Str("table", table).Str("segment", name).Int("records", n).Msg("segment flushed")
	}
}

func (p *Pipeline) tableDir(table string) string {
	return filepath.Join(p.cfg.OutputDir, table)
}
