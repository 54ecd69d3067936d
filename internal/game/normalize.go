package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSchema is returned when a raw game cannot be projected onto Record.
var ErrSchema = errors.New("schema error")

// DateTimeLayout parses UTCDate and UTCTime joined by a single space.
const DateTimeLayout = "2006.01.02 15:04:05"

// Defaults for Options.
const (
	DefaultSitePrefix = "https://lichess.org/"
	DefaultEvalMarker = "[%eval"
)

// Options controls the derived fields of Normalize.
type Options struct {
	SitePrefix   string // stripped from Site to form the game ID
	EvalMarker   string // substring of the move text that sets HasEval
	IncludeMoves bool   // keep the move text on the record
}

func (o Options) withDefaults() Options {
	if o.SitePrefix == "" {
		o.SitePrefix = DefaultSitePrefix
	}
	if o.EvalMarker == "" {
		o.EvalMarker = DefaultEvalMarker
	}
	return o
}

// Normalize converts a raw tag set into a typed Record. Values equal to Null
// or absent become nil. UTCDate and UTCTime are required since records are
// ordered by them. Any failure wraps ErrSchema.
func Normalize(raw Raw, opts Options) (Record, error) {
	opts = opts.withDefaults()

	dateTime, err := parseDateTime(raw)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Category:    raw.Category,
		Tournament:  raw.Tournament,
		White:       nullable(raw.Tags[TagWhite]),
		Black:       nullable(raw.Tags[TagBlack]),
		WhiteTitle:  nullable(raw.Tags[TagWhiteTitle]),
		BlackTitle:  nullable(raw.Tags[TagBlackTitle]),
		ECO:         nullable(raw.Tags[TagECO]),
		Opening:     nullable(raw.Tags[TagOpening]),
		TimeControl: nullable(raw.Tags[TagTimeControl]),
		Termination: nullable(raw.Tags[TagTermination]),
		DateTime:    dateTime,
		HasEval:     opts.EvalMarker != "" && strings.Contains(raw.Moves, opts.EvalMarker),
	}
	if site := nullable(raw.Tags[TagSite]); site != nil {
		id := strings.TrimPrefix(*site, opts.SitePrefix)
		rec.ID = &id
	}
	if r := nullable(raw.Tags[TagResult]); r != nil {
		res := Result(*r)
		rec.Result = &res
	}
	if opts.IncludeMoves && raw.Moves != "" {
		moves := raw.Moves
		rec.Moves = &moves
	}

	ints := []struct {
		tag string
		dst **int
	}{
		{TagWhiteElo, &rec.WhiteElo},
		{TagBlackElo, &rec.BlackElo},
		{TagWhiteRatingDiff, &rec.WhiteRatingDiff},
		{TagBlackRatingDiff, &rec.BlackRatingDiff},
	}
	for _, f := range ints {
		v, err := ParseInt(raw.Tags[f.tag])
		if err != nil {
			return Record{}, fmt.Errorf("%w: game at line %d: %s: %v", ErrSchema, raw.Line, f.tag, err)
		}
		*f.dst = v
	}
	return rec, nil
}

// ParseInt parses an optional integer tag value. Null and empty values give
// nil; a leading '+' is accepted.
func ParseInt(s string) (*int, error) {
	if s == Null || s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func nullable(s string) *string {
	if s == Null || s == "" {
		return nil
	}
	return &s
}

func required(raw Raw, tag string) (string, error) {
	v, ok := raw.Tags[tag]
	if !ok || v == Null || v == "" {
		return "", fmt.Errorf("%w: game at line %d: missing %s", ErrSchema, raw.Line, tag)
	}
	return v, nil
}

func parseDateTime(raw Raw) (time.Time, error) {
	date, err := required(raw, TagUTCDate)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := required(raw, TagUTCTime)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(DateTimeLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: game at line %d: date time: %v", ErrSchema, raw.Line, err)
	}
	return t, nil
}
