// Package pgnlog turns the decompressed lines of a game-log archive into raw
// per-game tag sets.
//
// The Assembler is an explicit three-state machine:
//
//	AwaitingHeaderBlock --tag--> InHeaderBlock --move text--> AwaitingGameEnd --separator--> AwaitingHeaderBlock
//
// Every (state, line kind) pair has a defined transition, including the end
// of the stream, so truncated input surfaces as an error instead of a lost game.
package pgnlog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/chesslog/internal/game"
)

var (
	// ErrMalformedTag is returned for a bracketed line that is not a complete [Key "Value"] tag.
	ErrMalformedTag = errors.New("malformed tag line")
	// ErrIncompleteGame is returned when the stream ends inside a header block.
	ErrIncompleteGame = errors.New("stream ended inside header block")
)

// DefaultTournamentMarker marks tournament games inside the first tag value.
const DefaultTournamentMarker = " tournament"

// MoveTextPrefix starts the move-notation line.
const MoveTextPrefix = "1."

// ParseError locates a fatal parse failure in the input.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// State is the assembler's position within a game.
type State int

const (
	AwaitingHeaderBlock State = iota
	InHeaderBlock
	AwaitingGameEnd
)

func (s State) String() string {
	switch s {
	case AwaitingHeaderBlock:
		return "AwaitingHeaderBlock"
	case InHeaderBlock:
		return "InHeaderBlock"
	case AwaitingGameEnd:
		return "AwaitingGameEnd"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures tag interpretation.
type Options struct {
	TournamentMarker string // substring of the first tag value flagging a tournament game
	MaxPlies         int    // truncate move text after this many plies, 0 keeps it whole
}

// Assembler accumulates lines into games. It is not safe for concurrent use.
type Assembler struct {
	opts  Options
	state State
	line  int
	cur   *game.Raw
}

// NewAssembler returns an assembler in AwaitingHeaderBlock.
func NewAssembler(opts Options) *Assembler {
	return &Assembler{opts: opts}
}

// State returns the current state.
func (a *Assembler) State() State {
	return a.state
}

// Feed consumes one line without its trailing newline. It returns the game
// finished by this line, if any.
func (a *Assembler) Feed(line string) (*game.Raw, error) {
	a.line++
	line = strings.TrimRight(line, "\r")
	isTag := strings.HasPrefix(line, "[")

	switch a.state {
	case AwaitingHeaderBlock:
		if !isTag {
			return nil, nil
		}
		return nil, a.begin(line)

	case InHeaderBlock:
		switch {
		case isTag:
			key, value, err := a.parseTag(line)
			if err != nil {
				return nil, err
			}
			a.cur.Tags[key] = value
		case strings.TrimSpace(line) == "":
			// separator between headers and move text
		case strings.HasPrefix(line, MoveTextPrefix):
			a.cur.Moves = truncatePlies(line, a.opts.MaxPlies)
			a.state = AwaitingGameEnd
		default:
			// bare result of a game without moves, e.g. "0-1"
			a.cur.Moves = line
			a.state = AwaitingGameEnd
		}
		return nil, nil

	case AwaitingGameEnd:
		done := a.finish()
		if isTag {
			if err := a.begin(line); err != nil {
				return nil, err
			}
		}
		return done, nil
	}
	return nil, fmt.Errorf("pgnlog: invalid state %v", a.state)
}

// Finish is called at end of input. A game whose move text was seen is
// emitted; a game still in its header block is an error.
func (a *Assembler) Finish() (*game.Raw, error) {
	switch a.state {
	case AwaitingGameEnd:
		return a.finish(), nil
	case InHeaderBlock:
		start := a.cur.Line
		a.cur = nil
		a.state = AwaitingHeaderBlock
		return nil, &ParseError{Line: start, Text: "", Err: ErrIncompleteGame}
	default:
		return nil, nil
	}
}

func (a *Assembler) begin(line string) error {
	key, value, err := a.parseTag(line)
	if err != nil {
		return err
	}
	category, tournament := splitCategory(value, a.opts.TournamentMarker)
	a.cur = &game.Raw{
		Category:   category,
		Tournament: tournament,
		Tags:       map[string]string{key: value},
		Line:       a.line,
	}
	a.state = InHeaderBlock
	return nil
}

func (a *Assembler) finish() *game.Raw {
	g := a.cur
	for _, tag := range game.OptionalTags {
		if _, ok := g.Tags[tag]; !ok {
			g.Tags[tag] = game.Null
		}
	}
	a.cur = nil
	a.state = AwaitingHeaderBlock
	return g
}

func (a *Assembler) parseTag(line string) (string, string, error) {
	key, value, ok := ParseTag(line)
	if !ok {
		text := line
		if len(text) > 120 {
			text = text[:120]
		}
		return "", "", &ParseError{Line: a.line, Text: text, Err: ErrMalformedTag}
	}
	return key, value, nil
}

// ParseTag splits a [Key "Value"] line. The value spans from the first to the
// last double quote, so embedded quotes survive.
func ParseTag(line string) (key, value string, ok bool) {
	line = strings.TrimRight(line, " \t\r")
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", "", false
	}
	body := line[1 : len(line)-1]
	end := strings.IndexAny(body, " \t")
	if end <= 0 {
		return "", "", false
	}
	key = body[:end]
	first := strings.IndexByte(body, '"')
	last := strings.LastIndexByte(body, '"')
	if first < end || last <= first {
		return "", "", false
	}
	return key, body[first+1 : last], true
}

func splitCategory(value, marker string) (string, bool) {
	if marker == "" {
		return value, false
	}
	i := strings.Index(value, marker)
	if i < 0 {
		return value, false
	}
	return strings.TrimSpace(value[:i]), true
}

// truncatePlies cuts move text after maxPlies half-moves, keeping the comment
// attached to the last kept move.
func truncatePlies(text string, maxPlies int) string {
	if maxPlies <= 0 {
		return text
	}
	plies := 0
	depth := 0
	numberStart := -1
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '{':
			depth++
			i++
			continue
		case c == '}':
			if depth > 0 {
				depth--
			}
			i++
			continue
		case depth > 0 || c == ' ' || c == '\t':
			i++
			continue
		}

		j := i
		for j < len(text) && text[j] != ' ' && text[j] != '\t' && text[j] != '{' {
			j++
		}
		token := text[i:j]
		switch {
		case isMoveNumber(token):
			numberStart = i
		case isResult(token) || token[0] == '$':
		default:
			if plies == maxPlies {
				cut := i
				if numberStart >= 0 {
					cut = numberStart
				}
				return strings.TrimSpace(text[:cut])
			}
			plies++
			numberStart = -1
		}
		i = j
	}
	return text
}

func isMoveNumber(token string) bool {
	digits := 0
	for digits < len(token) && token[digits] >= '0' && token[digits] <= '9' {
		digits++
	}
	if digits == 0 || digits == len(token) {
		return false
	}
	return strings.Trim(token[digits:], ".") == ""
}

func isResult(token string) bool {
	switch game.Result(token) {
	case game.WhiteWins, game.BlackWins, game.Draw, game.Unfinished:
		return true
	}
	return false
}
