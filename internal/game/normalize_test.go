package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawGame() Raw {
	return Raw{
		Category: "Rated Blitz game",
		Line:     1,
		Tags: map[string]string{
			TagEvent:           "Rated Blitz game",
			TagSite:            "https://lichess.org/abcd1234",
			TagWhite:           "alice",
			TagBlack:           "bob",
			TagResult:          "1-0",
			TagUTCDate:         "2013.01.01",
			TagUTCTime:         "00:01:03",
			TagWhiteElo:        "1500",
			TagBlackElo:        "1600",
			TagWhiteTitle:      Null,
			TagBlackTitle:      "FM",
			TagWhiteRatingDiff: "+5",
			TagBlackRatingDiff: "-5",
			TagECO:             "C00",
			TagOpening:         "French Defense",
			TagTimeControl:     "300+0",
			TagTermination:     "Normal",
		},
		Moves: "1. e4 { [%eval 0.2] } e6 1-0",
	}
}

func TestNormalize(t *testing.T) {
	rec, err := Normalize(rawGame(), Options{})
	require.NoError(t, err)

	require.NotNil(t, rec.ID)
	assert.Equal(t, "abcd1234", *rec.ID)
	require.NotNil(t, rec.White)
	assert.Equal(t, "alice", *rec.White)
	require.NotNil(t, rec.Black)
	assert.Equal(t, "bob", *rec.Black)
	require.NotNil(t, rec.Result)
	assert.Equal(t, WhiteWins, *rec.Result)
	require.NotNil(t, rec.WhiteElo)
	assert.Equal(t, 1500, *rec.WhiteElo)
	require.NotNil(t, rec.WhiteRatingDiff)
	assert.Equal(t, 5, *rec.WhiteRatingDiff)
	require.NotNil(t, rec.BlackRatingDiff)
	assert.Equal(t, -5, *rec.BlackRatingDiff)
	assert.Nil(t, rec.WhiteTitle)
	require.NotNil(t, rec.BlackTitle)
	assert.Equal(t, "FM", *rec.BlackTitle)
	assert.Equal(t, time.Date(2013, 1, 1, 0, 1, 3, 0, time.UTC), rec.DateTime)
	assert.True(t, rec.HasEval)
	assert.Nil(t, rec.Moves, "moves are dropped unless requested")
}

func TestNormalizeNullSentinel(t *testing.T) {
	raw := rawGame()
	for _, tag := range OptionalTags {
		raw.Tags[tag] = Null
	}

	rec, err := Normalize(raw, Options{})
	require.NoError(t, err)

	assert.Nil(t, rec.Result)
	assert.Nil(t, rec.WhiteElo)
	assert.Nil(t, rec.BlackElo)
	assert.Nil(t, rec.WhiteTitle)
	assert.Nil(t, rec.BlackTitle)
	assert.Nil(t, rec.WhiteRatingDiff)
	assert.Nil(t, rec.BlackRatingDiff)
	assert.Nil(t, rec.ECO)
	assert.Nil(t, rec.Opening)
	assert.Nil(t, rec.TimeControl)
	assert.Nil(t, rec.Termination)
}

func TestNormalizeNullIdentity(t *testing.T) {
	raw := rawGame()
	raw.Tags[TagWhite] = Null
	delete(raw.Tags, TagBlack)
	raw.Tags[TagSite] = Null

	rec, err := Normalize(raw, Options{})
	require.NoError(t, err)
	assert.Nil(t, rec.White)
	assert.Nil(t, rec.Black)
	assert.Nil(t, rec.ID)
	assert.Equal(t, time.Date(2013, 1, 1, 0, 1, 3, 0, time.UTC), rec.DateTime)
}

func TestNormalizeIncludeMoves(t *testing.T) {
	raw := rawGame()
	raw.Moves = "1. e4 e5 1/2-1/2"

	rec, err := Normalize(raw, Options{IncludeMoves: true})
	require.NoError(t, err)
	require.NotNil(t, rec.Moves)
	assert.Equal(t, "1. e4 e5 1/2-1/2", *rec.Moves)
	assert.False(t, rec.HasEval)
}

func TestNormalizeSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(Raw)
	}{
		{"bad date", func(r Raw) { r.Tags[TagUTCDate] = "2013-01-01" }},
		{"unknown time", func(r Raw) { r.Tags[TagUTCTime] = Null }},
		{"missing date", func(r Raw) { delete(r.Tags, TagUTCDate) }},
		{"bad elo", func(r Raw) { r.Tags[TagBlackElo] = "16OO" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawGame()
			tt.edit(raw)
			_, err := Normalize(raw, Options{})
			require.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestParseInt(t *testing.T) {
	v, err := ParseInt("+5")
	require.NoError(t, err)
	assert.Equal(t, 5, *v)

	v, err = ParseInt(Null)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = ParseInt("five")
	assert.Error(t, err)
}

func TestResultReverse(t *testing.T) {
	assert.Equal(t, BlackWins, WhiteWins.Reverse())
	assert.Equal(t, WhiteWins, BlackWins.Reverse())
	assert.Equal(t, Draw, Draw.Reverse())
	assert.Equal(t, Unfinished, Unfinished.Reverse())
	assert.Equal(t, Result("?"), Result("?").Reverse())
}
