// Package game holds the per-game data model: the raw tag set produced by the
// assembler and the typed record produced by Normalize.
package game

import "time"

// Null is the raw sentinel for a missing value.
const Null = "?"

// Tag names read from the header block.
const (
	TagEvent           = "Event"
	TagSite            = "Site"
	TagWhite           = "White"
	TagBlack           = "Black"
	TagResult          = "Result"
	TagUTCDate         = "UTCDate"
	TagUTCTime         = "UTCTime"
	TagWhiteElo        = "WhiteElo"
	TagBlackElo        = "BlackElo"
	TagWhiteTitle      = "WhiteTitle"
	TagBlackTitle      = "BlackTitle"
	TagWhiteRatingDiff = "WhiteRatingDiff"
	TagBlackRatingDiff = "BlackRatingDiff"
	TagECO             = "ECO"
	TagOpening         = "Opening"
	TagTimeControl     = "TimeControl"
	TagTermination     = "Termination"
)

// OptionalTags are filled with Null when absent so every record has the same columns.
var OptionalTags = []string{
	TagResult,
	TagWhiteElo,
	TagBlackElo,
	TagWhiteTitle,
	TagBlackTitle,
	TagWhiteRatingDiff,
	TagBlackRatingDiff,
	TagECO,
	TagOpening,
	TagTimeControl,
	TagTermination,
}

// Raw is one game's header tags and move text as read from the archive.
type Raw struct {
	Category   string            // first tag value with the tournament marker removed
	Tournament bool              // first tag value carried the tournament marker
	Tags       map[string]string // every header tag, optional ones filled with Null
	Moves      string            // move text, possibly truncated
	Line       int               // line number of the first header line
}

// Result is a game outcome in PGN notation.
type Result string

const (
	WhiteWins  Result = "1-0"
	BlackWins  Result = "0-1"
	Draw       Result = "1/2-1/2"
	Unfinished Result = "*"
)

var reversed = map[Result]Result{
	WhiteWins: BlackWins,
	BlackWins: WhiteWins,
}

// Reverse returns the result seen from the other side. Draws and unknown
// outcomes map to themselves.
func (r Result) Reverse() Result {
	if o, ok := reversed[r]; ok {
		return o
	}
	return r
}

// Record is the normalized projection of a Raw game. Pointer fields are nil
// where the archive had no value; only DateTime is always present.
type Record struct {
	ID              *string   `json:"id"`
	Category        string    `json:"category"`
	Tournament      bool      `json:"tournament"`
	White           *string   `json:"white"`
	Black           *string   `json:"black"`
	Result          *Result   `json:"result"`
	WhiteElo        *int      `json:"white_elo"`
	BlackElo        *int      `json:"black_elo"`
	WhiteTitle      *string   `json:"white_title"`
	BlackTitle      *string   `json:"black_title"`
	WhiteRatingDiff *int      `json:"white_rating_diff"`
	BlackRatingDiff *int      `json:"black_rating_diff"`
	ECO             *string   `json:"eco"`
	Opening         *string   `json:"opening"`
	TimeControl     *string   `json:"time_control"`
	Termination     *string   `json:"termination"`
	DateTime        time.Time `json:"date_time"`
	Moves           *string   `json:"moves"`
	HasEval         bool      `json:"has_eval"`
}
