package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public monthly database.
const DefaultBaseURL = "https://database.lichess.org"

// ErrFetch is returned when the server answers with a non-success status.
var ErrFetch = errors.New("fetch failed")

// URLFor returns the download URL of a rated monthly archive.
func URLFor(baseURL, variant string, year, month int) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/lichess_db_%s_rated_%04d-%02d.pgn.zst", baseURL, variant, variant, year, month)
}

// Fetcher downloads archives into a local directory.
type Fetcher struct {
	Client *http.Client
	Logger zerolog.Logger
}

// NewFetcher returns a fetcher using http.DefaultClient.
func NewFetcher(logger zerolog.Logger) *Fetcher {
	return &Fetcher{Client: http.DefaultClient, Logger: logger}
}

// Fetch downloads url into dir and returns the local path. The file only
// appears under its final name once the body has been fully written.
func (f *Fetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	dst := filepath.Join(dir, path.Base(url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s: status %d", ErrFetch, url, resp.StatusCode)
	}

	start := time.Now()
	f.Logger.Info().
		Str("url", url).
		Str("size", sizeHint(resp.ContentLength)).
		Msg("download started")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	tmpPath := dst + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriterSize(out, 1<<20)
	n, err := io.Copy(bw, resp.Body)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	f.Logger.Info().
		Str("path", dst).
		Str("bytes", humanize.Bytes(uint64(n))).
		Dur("elapsed", time.Since(start)).
		Msg("download complete")
	return dst, nil
}

func sizeHint(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}
