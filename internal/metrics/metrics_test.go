package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.SegmentFlushed("games", 2)
	m.SegmentFlushed("games", 1)
	m.SegmentFlushed("perspectives", 4)
	m.ArchiveDone(StatusDone)
	m.ArchiveDone(StatusSkipped)
	m.ArchiveDone(StatusSkipped)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Segments.WithLabelValues("games")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Records.WithLabelValues("games")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.Records.WithLabelValues("perspectives")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Archives.WithLabelValues(StatusSkipped)), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SegmentFlushed("games", 1)
		m.ArchiveDone(StatusFailed)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Games.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chesslog_games_total 3")
}
