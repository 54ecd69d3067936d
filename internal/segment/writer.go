// Package segment buffers records and flushes them as immutable, bounded
// output segments named {year}_{month}_{batch}.
package segment

import (
	"fmt"
)

// DefaultMaxRecords bounds a segment when no size is configured.
const DefaultMaxRecords = 1_000_000

// Name returns the deterministic segment name for a batch.
func Name(year, month, batch int) string {
	return fmt.Sprintf("%s_%03d", Prefix(year, month), batch)
}

// Prefix returns the name prefix shared by every segment of one archive.
func Prefix(year, month int) string {
	return fmt.Sprintf("%04d_%02d", year, month)
}

// Sink persists one finished segment. A sink must not overwrite an existing
// segment.
type Sink[T any] interface {
	WriteSegment(name string, records []T) error
}

// Writer accumulates records and hands a full batch to its sink each time the
// buffer reaches the configured size.
type Writer[T any] struct {
	sink    Sink[T]
	max     int
	year    int
	month   int
	batch   int
	buf     []T
	names   []string
	written int64
	onFlush func(name string, n int)
}

// NewWriter returns a writer for the segments of one archive period.
func NewWriter[T any](sink Sink[T], year, month, maxRecords int) *Writer[T] {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Writer[T]{
		sink:  sink,
		max:   maxRecords,
		year:  year,
		month: month,
		buf:   make([]T, 0, min(maxRecords, 64*1024)),
	}
}

// OnFlush registers a callback invoked after each segment is written.
func (w *Writer[T]) OnFlush(fn func(name string, n int)) {
	w.onFlush = fn
}

// Append buffers records, flushing every time the buffer fills.
func (w *Writer[T]) Append(records ...T) error {
	for _, rec := range records {
		w.buf = append(w.buf, rec)
		if len(w.buf) >= w.max {
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes any buffered records as the next segment. An empty buffer is
// a no-op.
func (w *Writer[T]) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	name := Name(w.year, w.month, w.batch)
	if err := w.sink.WriteSegment(name, w.buf); err != nil {
		return fmt.Errorf("flush segment %s: %w", name, err)
	}
	n := len(w.buf)
	w.batch++
	w.written += int64(n)
	w.names = append(w.names, name)
	w.buf = w.buf[:0]
	if w.onFlush != nil {
		w.onFlush(name, n)
	}
	return nil
}

// Segments returns the names flushed so far.
func (w *Writer[T]) Segments() []string {
	return append([]string(nil), w.names...)
}

// Buffered returns the number of records not yet flushed.
func (w *Writer[T]) Buffered() int {
	return len(w.buf)
}

// Written returns the number of records flushed.
func (w *Writer[T]) Written() int64 {
	return w.written
}
