// Package perspective re-expresses each game once from each participant's
// point of view and merges the two per-side streams back into one
// chronological stream.
package perspective

import (
	"time"

	"github.com/freeeve/chesslog/internal/game"
	"github.com/freeeve/chesslog/internal/stats"
)

// Side names the original color a perspective record was taken from.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Record is one game seen from one participant. Player* fields describe the
// perspective's owner, Opponent* fields the other side. Counter fields are
// the state after this game was recorded for both sides. A side whose name is
// unknown is not recorded: its fingerprint is nil and its counters are zero.
type Record struct {
	ID                 *string      `json:"id"`
	Side               Side         `json:"side"`
	Category           string       `json:"category"`
	Tournament         bool         `json:"tournament"`
	DateTime           time.Time    `json:"date_time"`
	Player             *string      `json:"player"`
	Opponent           *string      `json:"opponent"`
	Result             *game.Result `json:"result"`
	PlayerElo          *int         `json:"player_elo"`
	OpponentElo        *int         `json:"opponent_elo"`
	PlayerTitle        *string      `json:"player_title"`
	OpponentTitle      *string      `json:"opponent_title"`
	PlayerRatingDiff   *int         `json:"player_rating_diff"`
	OpponentRatingDiff *int         `json:"opponent_rating_diff"`
	ECO                *string      `json:"eco"`
	Opening            *string      `json:"opening"`
	TimeControl        *string      `json:"time_control"`
	Termination        *string      `json:"termination"`
	Moves              *string      `json:"moves"`
	HasEval            bool         `json:"has_eval"`

	PlayerFingerprint   *float64 `json:"player_fingerprint"`
	PlayerGamesCategory int64    `json:"player_games_category"`
	PlayerGamesTotal    int64    `json:"player_games_total"`
	PlayerMaxElo        *int     `json:"player_max_elo"`
	PlayerMaxFaced      *int     `json:"player_max_faced"`

	OpponentFingerprint   *float64 `json:"opponent_fingerprint"`
	OpponentGamesCategory int64    `json:"opponent_games_category"`
	OpponentGamesTotal    int64    `json:"opponent_games_total"`
	OpponentMaxElo        *int     `json:"opponent_max_elo"`
	OpponentMaxFaced      *int     `json:"opponent_max_faced"`
}

// Recorder is the part of the statistics store Expand needs.
type Recorder interface {
	RecordGame(category, player string, rating, opponentRating *int) stats.Snapshot
}

// Expand records the game for White and then Black, then builds both
// perspective records from the resulting snapshots. A side with a null name
// is left out of the statistics.
func Expand(rec game.Record, r Recorder) (white, black Record) {
	ws := record(r, rec.Category, rec.White, rec.WhiteElo, rec.BlackElo)
	bs := record(r, rec.Category, rec.Black, rec.BlackElo, rec.WhiteElo)

	white = Record{
		Side:               White,
		Player:             rec.White,
		Opponent:           rec.Black,
		Result:             rec.Result,
		PlayerElo:          rec.WhiteElo,
		OpponentElo:        rec.BlackElo,
		PlayerTitle:        rec.WhiteTitle,
		OpponentTitle:      rec.BlackTitle,
		PlayerRatingDiff:   rec.WhiteRatingDiff,
		OpponentRatingDiff: rec.BlackRatingDiff,
	}
	setShared(&white, rec)
	setCounters(&white, ws, bs)

	black = Record{
		Side:               Black,
		Player:             rec.Black,
		Opponent:           rec.White,
		Result:             reverse(rec.Result),
		PlayerElo:          rec.BlackElo,
		OpponentElo:        rec.WhiteElo,
		PlayerTitle:        rec.BlackTitle,
		OpponentTitle:      rec.WhiteTitle,
		PlayerRatingDiff:   rec.BlackRatingDiff,
		OpponentRatingDiff: rec.WhiteRatingDiff,
	}
	setShared(&black, rec)
	setCounters(&black, bs, ws)
	return white, black
}

func setShared(p *Record, rec game.Record) {
	p.ID = rec.ID
	p.Category = rec.Category
	p.Tournament = rec.Tournament
	p.DateTime = rec.DateTime
	p.ECO = rec.ECO
	p.Opening = rec.Opening
	p.TimeControl = rec.TimeControl
	p.Termination = rec.Termination
	p.Moves = rec.Moves
	p.HasEval = rec.HasEval
}

func record(r Recorder, category string, player *string, rating, opponentRating *int) *stats.Snapshot {
	if player == nil {
		return nil
	}
	s := r.RecordGame(category, *player, rating, opponentRating)
	return &s
}

func setCounters(p *Record, player, opponent *stats.Snapshot) {
	if player != nil {
		fp := player.Fingerprint
		p.PlayerFingerprint = &fp
		p.PlayerGamesCategory = player.GamesInCategory
		p.PlayerGamesTotal = player.GamesTotal
		p.PlayerMaxElo = player.MaxRating
		p.PlayerMaxFaced = player.MaxFaced
	}
	if opponent != nil {
		fp := opponent.Fingerprint
		p.OpponentFingerprint = &fp
		p.OpponentGamesCategory = opponent.GamesInCategory
		p.OpponentGamesTotal = opponent.GamesTotal
		p.OpponentMaxElo = opponent.MaxRating
		p.OpponentMaxFaced = opponent.MaxFaced
	}
}

func reverse(r *game.Result) *game.Result {
	if r == nil {
		return nil
	}
	rev := r.Reverse()
	return &rev
}
