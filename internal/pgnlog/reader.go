package pgnlog

import (
	"bufio"
	"fmt"
	"io"

	"github.com/freeeve/chesslog/internal/game"
)

// maxLineSize bounds a single line; move text with clock and eval comments
// stays far below it.
const maxLineSize = 16 * 1024 * 1024

// Reader pulls games from a line-oriented stream.
type Reader struct {
	sc    *bufio.Scanner
	asm   *Assembler
	bytes int64
	done  bool
}

// NewReader reads games from r.
func NewReader(r io.Reader, opts Options) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{sc: sc, asm: NewAssembler(opts)}
}

// Next returns the next complete game, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (*game.Raw, error) {
	if r.done {
		return nil, io.EOF
	}
	for r.sc.Scan() {
		line := r.sc.Text()
		r.bytes += int64(len(line)) + 1
		g, err := r.asm.Feed(line)
		if err != nil {
			r.done = true
			return nil, err
		}
		if g != nil {
			return g, nil
		}
	}
	r.done = true
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", r.asm.line+1, err)
	}
	g, err := r.asm.Finish()
	if err != nil {
		return nil, err
	}
	if g != nil {
		return g, nil
	}
	return nil, io.EOF
}

// BytesRead returns the number of decompressed bytes consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.bytes
}
