package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chesslog/internal/stats"
)

func TestNewWatcherDisabled(t *testing.T) {
	w, err := NewWatcher(WatchConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestPending(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"lichess_db_standard_rated_2013-02.pgn.zst",
		"lichess_db_standard_rated_2013-01.pgn",
		"notes.txt",
		"undated.pgn",
		"lichess_db_standard_rated_2013-03.pgn.zst.tmp",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "processed"), 0755))

	files, err := Pending(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"lichess_db_standard_rated_2013-01.pgn",
		"lichess_db_standard_rated_2013-02.pgn.zst",
	}, files)
}

func TestWatcherPoll(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeArchive(t, in, "lichess_db_standard_rated_2013-02.pgn.zst", pgnGames(2))
	writeArchive(t, in, "lichess_db_standard_rated_2013-01.pgn.zst", pgnGames(3))

	p := newPipeline(t, out, 10)
	w, err := NewWatcher(WatchConfig{WatchDir: in, PollInterval: time.Millisecond, Logger: zerolog.Nop()}, p)
	require.NoError(t, err)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(in, "processed", "lichess_db_standard_rated_2013-01.pgn.zst"))
	assert.FileExists(t, filepath.Join(in, "processed", "lichess_db_standard_rated_2013-02.pgn.zst"))

	c, ok := p.Store().Lookup(stats.AllCategory, "w0")
	require.True(t, ok)
	assert.EqualValues(t, 2, c.Games)

	n, err = w.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	p := newPipeline(t, t.TempDir(), 10)
	w, err := NewWatcher(WatchConfig{WatchDir: t.TempDir(), PollInterval: time.Millisecond, Logger: zerolog.Nop()}, p)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
}
