package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

type memSink struct {
	segments map[string][]row
	order    []string
	fail     error
}

func (m *memSink) WriteSegment(name string, records []row) error {
	if m.fail != nil {
		return m.fail
	}
	if m.segments == nil {
		m.segments = make(map[string][]row)
	}
	m.segments[name] = append([]row(nil), records...)
	m.order = append(m.order, name)
	return nil
}

func rows(n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{ID: string(rune('a' + i)), Count: i}
	}
	return out
}

func TestName(t *testing.T) {
	assert.Equal(t, "2013_01_000", Name(2013, 1, 0))
	assert.Equal(t, "2024_11_012", Name(2024, 11, 12))
	assert.Equal(t, "2013_01", Prefix(2013, 1))
}

func TestWriterBatches(t *testing.T) {
	sink := &memSink{}
	w := NewWriter[row](sink, 2013, 1, 2)

	var flushed []int
	w.OnFlush(func(name string, n int) { flushed = append(flushed, n) })

	require.NoError(t, w.Append(rows(5)...))
	assert.Equal(t, 1, w.Buffered())
	require.NoError(t, w.Flush())

	assert.Equal(t, []string{"2013_01_000", "2013_01_001", "2013_01_002"}, sink.order)
	assert.Equal(t, []int{2, 2, 1}, flushed)
	assert.Equal(t, sink.order, w.Segments())
	assert.EqualValues(t, 5, w.Written())
	assert.Equal(t, rows(5)[4:], sink.segments["2013_01_002"])

	// nothing buffered, nothing written
	require.NoError(t, w.Flush())
	assert.Len(t, sink.order, 3)
}

func TestWriterExactMultiple(t *testing.T) {
	sink := &memSink{}
	w := NewWriter[row](sink, 2013, 1, 2)
	require.NoError(t, w.Append(rows(4)...))
	require.NoError(t, w.Flush())
	assert.Equal(t, []string{"2013_01_000", "2013_01_001"}, sink.order)
}

func TestWriterSinkError(t *testing.T) {
	boom := errors.New("disk full")
	w := NewWriter[row](&memSink{fail: boom}, 2013, 1, 2)
	err := w.Append(rows(2)...)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "2013_01_000")
	assert.Empty(t, w.Segments())
}

func TestFileSinkRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecZstd, CodecLZ4} {
		t.Run(string(codec), func(t *testing.T) {
			dir := t.TempDir()
			sink, err := NewFileSink[row](filepath.Join(dir, "games"), codec)
			require.NoError(t, err)

			w := NewWriter[row](sink, 2013, 1, 3)
			require.NoError(t, w.Append(rows(4)...))
			require.NoError(t, w.Flush())

			first, err := ReadSegment[row](sink.Path("2013_01_000"))
			require.NoError(t, err)
			assert.Equal(t, rows(3), first)

			second, err := ReadSegment[row](sink.Path("2013_01_001"))
			require.NoError(t, err)
			assert.Equal(t, rows(4)[3:], second)

			leftovers, err := filepath.Glob(filepath.Join(dir, "games", "*.tmp"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestFileSinkRefusesOverwrite(t *testing.T) {
	sink, err := NewFileSink[row](t.TempDir(), CodecZstd)
	require.NoError(t, err)
	require.NoError(t, sink.WriteSegment("2013_01_000", rows(1)))
	err = sink.WriteSegment("2013_01_000", rows(2))
	assert.ErrorIs(t, err, ErrSegmentExists)
}

func TestRemoveSegments(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink[row](dir, CodecZstd)
	require.NoError(t, err)
	require.NoError(t, sink.WriteSegment("2013_01_000", rows(1)))
	require.NoError(t, sink.WriteSegment("2013_02_000", rows(1)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2013_01_001.ndjson.zst.tmp"), nil, 0644))

	n, err := RemoveSegments(dir, "2013_01")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, sink.Path("2013_02_000"))
	assert.NoFileExists(t, sink.Path("2013_01_000"))
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)
	c, err = ParseCodec("LZ4")
	require.NoError(t, err)
	assert.Equal(t, CodecLZ4, c)
	_, err = ParseCodec("gzip")
	assert.Error(t, err)
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := ReadManifest(dir, "2013_01")
	require.NoError(t, err)
	assert.Nil(t, m)

	want := Manifest{
		Archive:      "lichess_db_standard_rated_2013-01.pgn.zst",
		RunID:        "run",
		Games:        2,
		Perspectives: 4,
		Segments:     map[string][]string{"games": {"2013_01_000"}},
		CompletedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, WriteManifest(dir, "2013_01", want))

	got, err := ReadManifest(dir, "2013_01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}
