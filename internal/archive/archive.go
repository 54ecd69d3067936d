// Package archive identifies, opens and downloads monthly game archives.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// MaxWindow is the largest zstd window the decoder accepts. The monthly
// dumps are compressed with long-distance matching.
const MaxWindow = 1 << 31

// ID is the identity of an archive derived from its file name.
type ID struct {
	Dataset string
	Year    int
	Month   int
}

// Prefix returns the output name prefix for the archive period.
func (id ID) Prefix() string {
	return fmt.Sprintf("%04d_%02d", id.Year, id.Month)
}

func (id ID) String() string {
	return fmt.Sprintf("%s_%04d-%02d", id.Dataset, id.Year, id.Month)
}

// ParseName derives the archive identity from a {dataset}_{YYYY}-{MM}.ext
// file name. Any directory part is ignored.
func ParseName(path string) (ID, error) {
	base := filepath.Base(path)
	stem, _, _ := strings.Cut(base, ".")
	i := strings.LastIndexByte(stem, '_')
	if i <= 0 {
		return ID{}, fmt.Errorf("archive name %q: missing dataset", base)
	}
	ys, ms, ok := strings.Cut(stem[i+1:], "-")
	if !ok || len(ys) != 4 || len(ms) != 2 {
		return ID{}, fmt.Errorf("archive name %q: want {dataset}_YYYY-MM", base)
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return ID{}, fmt.Errorf("archive name %q: year: %w", base, err)
	}
	month, err := strconv.Atoi(ms)
	if err != nil || month < 1 || month > 12 {
		return ID{}, fmt.Errorf("archive name %q: invalid month %q", base, ms)
	}
	return ID{Dataset: stem[:i], Year: year, Month: month}, nil
}

// IsArchive reports whether name looks like a .pgn or .pgn.zst file.
func IsArchive(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		return filepath.Ext(strings.TrimSuffix(name, ext)) == ".pgn"
	}
	return false
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// Open returns the decompressed content of the archive at path. Files ending
// in .zst are decoded on the fly, anything else is read as is.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".zst" {
		return f, nil
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderMaxWindow(MaxWindow), zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open zstd %s: %w", path, err)
	}
	return &zstdFile{Decoder: dec, f: f}, nil
}
