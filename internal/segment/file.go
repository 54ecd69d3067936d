package segment

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression of segment files.
type Codec string

const (
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// ErrSegmentExists is returned when a segment file is already present.
var ErrSegmentExists = errors.New("segment already exists")

const recordsExt = ".ndjson"

// Ext returns the file extension used for the codec.
func (c Codec) Ext() string {
	if c == CodecLZ4 {
		return recordsExt + ".lz4"
	}
	return recordsExt + ".zst"
}

// ParseCodec validates a codec name; empty selects zstd.
func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(s)) {
	case "", CodecZstd:
		return CodecZstd, nil
	case CodecLZ4:
		return CodecLZ4, nil
	}
	return "", fmt.Errorf("unknown segment codec %q", s)
}

// FileSink writes each segment as one compressed newline-delimited JSON file
// in a directory. Files appear atomically via rename.
type FileSink[T any] struct {
	dir   string
	codec Codec
}

// NewFileSink creates dir if needed.
func NewFileSink[T any](dir string, codec Codec) (*FileSink[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileSink[T]{dir: dir, codec: codec}, nil
}

// Path returns the file path of a named segment.
func (s *FileSink[T]) Path(name string) string {
	return filepath.Join(s.dir, name+s.codec.Ext())
}

// WriteSegment implements Sink.
func (s *FileSink[T]) WriteSegment(name string, records []T) error {
	path := s.Path(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrSegmentExists, path)
	}
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := s.encode(f, records); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write segment %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close segment %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename segment %s: %w", path, err)
	}
	return nil
}

func (s *FileSink[T]) encode(f io.Writer, records []T) error {
	zw, err := newCompressor(f, s.codec)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(zw, 256*1024)
	enc := json.NewEncoder(bw)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			zw.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// RemoveSegments deletes every segment file of dir whose name starts with
// prefix, including leftovers of interrupted writes. It returns the number
// of files removed.
func RemoveSegments(dir, prefix string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*"+recordsExt+"*"))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

// ReadSegment decodes every record of a segment file; the codec is taken from
// the file extension.
func ReadSegment[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	case strings.HasSuffix(path, ".lz4"):
		r = lz4.NewReader(f)
	default:
		r = f
	}

	var out []T
	dec := json.NewDecoder(bufio.NewReader(r))
	for {
		var rec T
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, rec)
	}
}

func newCompressor(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	case CodecZstd, "":
		return zstd.NewWriter(w)
	}
	return nil, fmt.Errorf("unknown segment codec %q", codec)
}
