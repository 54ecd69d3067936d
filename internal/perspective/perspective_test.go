package perspective

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chesslog/internal/game"
	"github.com/freeeve/chesslog/internal/stats"
)

func intp(v int) *int { return &v }

func result(r game.Result) *game.Result { return &r }

func strp(s string) *string { return &s }

var t0 = time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)

func blitz(id, white, black string, res game.Result, at time.Time) game.Record {
	return game.Record{
		ID:          strp(id),
		Category:    "Rated Blitz game",
		White:       strp(white),
		Black:       strp(black),
		Result:      result(res),
		WhiteElo:    intp(1500),
		BlackElo:    intp(1600),
		WhiteTitle:  nil,
		BlackTitle:  nil,
		TimeControl: nil,
		DateTime:    at,
	}
}

func newStore() *stats.Store {
	return stats.New(stats.Options{Logger: zerolog.Nop()})
}

func TestExpandExample(t *testing.T) {
	s := newStore()
	white, black := Expand(blitz("g1", "alice", "bob", game.WhiteWins, t0), s)

	assert.Equal(t, White, white.Side)
	assert.Equal(t, "alice", *white.Player)
	assert.Equal(t, "bob", *white.Opponent)
	assert.Equal(t, game.WhiteWins, *white.Result)
	assert.EqualValues(t, 1, white.PlayerGamesTotal)
	assert.Equal(t, 1500, *white.PlayerElo)
	assert.Equal(t, 1600, *white.PlayerMaxFaced)

	assert.Equal(t, Black, black.Side)
	assert.Equal(t, "bob", *black.Player)
	assert.Equal(t, "alice", *black.Opponent)
	assert.Equal(t, game.BlackWins, *black.Result)
	assert.EqualValues(t, 1, black.PlayerGamesTotal)
	assert.Equal(t, 1600, *black.PlayerElo)

	// the opponent snapshot is the one taken after this game
	assert.Equal(t, black.PlayerFingerprint, white.OpponentFingerprint)
	assert.Equal(t, white.PlayerFingerprint, black.OpponentFingerprint)
	assert.EqualValues(t, 1, white.OpponentGamesTotal)
}

func TestExpandNullPlayer(t *testing.T) {
	s := newStore()
	rec := blitz("g1", "alice", "bob", game.WhiteWins, t0)
	rec.Black = nil
	white, black := Expand(rec, s)

	assert.Equal(t, "alice", *white.Player)
	assert.Nil(t, white.Opponent)
	require.NotNil(t, white.PlayerFingerprint)
	assert.EqualValues(t, 1, white.PlayerGamesTotal)
	assert.Nil(t, white.OpponentFingerprint)
	assert.Zero(t, white.OpponentGamesTotal)

	assert.Nil(t, black.Player)
	assert.Nil(t, black.PlayerFingerprint)
	assert.Zero(t, black.PlayerGamesTotal)
	assert.Equal(t, white.PlayerFingerprint, black.OpponentFingerprint)

	// only the named side is counted
	assert.Equal(t, 1, s.Len(stats.AllCategory))
	_, ok := s.Lookup(stats.AllCategory, "bob")
	assert.False(t, ok)
}

func TestLessNullID(t *testing.T) {
	a := Record{DateTime: t0, Side: Black}
	b := Record{DateTime: t0, ID: strp("a"), Side: White}
	assert.True(t, Less(&a, &b))
	assert.False(t, Less(&b, &a))
}

func TestExpandIsMirrored(t *testing.T) {
	s := newStore()
	results := []game.Result{game.WhiteWins, game.BlackWins, game.Draw, game.Unfinished}
	for i, res := range results {
		rec := blitz(fmt.Sprintf("g%d", i), "alice", "bob", res, t0.Add(time.Duration(i)*time.Minute))
		rec.WhiteRatingDiff = intp(i)
		rec.BlackRatingDiff = intp(-i)
		w, b := Expand(rec, s)

		assert.Equal(t, w.Player, b.Opponent)
		assert.Equal(t, w.Opponent, b.Player)
		assert.Equal(t, w.PlayerElo, b.OpponentElo)
		assert.Equal(t, w.OpponentElo, b.PlayerElo)
		assert.Equal(t, w.PlayerRatingDiff, b.OpponentRatingDiff)
		assert.Equal(t, w.PlayerGamesCategory, b.OpponentGamesCategory)
		assert.Equal(t, res.Reverse(), *b.Result)
		assert.Equal(t, res, b.Result.Reverse())
		assert.Equal(t, w.ID, b.ID)
		assert.Equal(t, w.DateTime, b.DateTime)
		assert.EqualValues(t, i+1, w.PlayerGamesTotal)
	}

	rec := blitz("unknown", "alice", "bob", game.Draw, t0)
	rec.Result = nil
	w, b := Expand(rec, s)
	assert.Nil(t, w.Result)
	assert.Nil(t, b.Result)
}

func sideStreams(n int) (whites, blacks []Record) {
	s := newStore()
	for i := 0; i < n; i++ {
		// pairs of games share a timestamp to exercise the ID tiebreak
		at := t0.Add(time.Duration(i/2) * time.Second)
		w, b := Expand(blitz(fmt.Sprintf("id%02d", n-i), "p"+fmt.Sprint(i%3), "q"+fmt.Sprint(i%4), game.Draw, at), s)
		whites = append(whites, w)
		blacks = append(blacks, b)
	}
	return whites, blacks
}

func TestMergeSorted(t *testing.T) {
	whites, blacks := sideStreams(9)
	sort.SliceStable(whites, func(i, j int) bool { return Less(&whites[i], &whites[j]) })
	sort.SliceStable(blacks, func(i, j int) bool { return Less(&blacks[i], &blacks[j]) })

	merged := MergeSorted(whites, blacks)
	require.Len(t, merged, 18)
	for i := 1; i < len(merged); i++ {
		assert.False(t, Less(&merged[i], &merged[i-1]), "out of order at %d", i)
	}
	for i := 0; i < len(merged); i += 2 {
		assert.Equal(t, merged[i].ID, merged[i+1].ID)
		assert.Equal(t, White, merged[i].Side)
		assert.Equal(t, Black, merged[i+1].Side)
	}
}

func TestMergerMatchesMergeSorted(t *testing.T) {
	whites, blacks := sideStreams(12)
	sort.SliceStable(whites, func(i, j int) bool { return Less(&whites[i], &whites[j]) })
	sort.SliceStable(blacks, func(i, j int) bool { return Less(&blacks[i], &blacks[j]) })

	var m Merger
	var out []Record
	for i := range whites {
		m.Push(whites[i], blacks[i])
		out = m.Ready(out)
		assert.LessOrEqual(t, m.Pending(), 1)
	}
	out = m.Drain(out)

	assert.Equal(t, MergeSorted(whites, blacks), out)
	assert.Zero(t, m.Pending())
}
