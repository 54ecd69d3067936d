// Package config loads pipeline settings from an optional .env file and
// CHESSLOG_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/freeeve/chesslog/internal/archive"
	"github.com/freeeve/chesslog/internal/game"
	"github.com/freeeve/chesslog/internal/pgnlog"
	"github.com/freeeve/chesslog/internal/segment"
	"github.com/freeeve/chesslog/internal/stats"
)

// Config holds every tunable of the ingest, fetch and export commands.
type Config struct {
	InputDir     string
	OutputDir    string
	ProcessedDir string
	SnapshotPath string

	LogLevel    string
	LogFile     string
	MetricsAddr string

	TournamentMarker string
	MaxPlies         int
	EvalMarker       string
	SitePrefix       string
	IncludeMoves     bool

	SegmentSize        int
	Compression        segment.Codec
	FingerprintSeed    uint64
	RandomFingerprints bool
	OnCorruptSnapshot  stats.CorruptPolicy

	PollInterval     time.Duration
	BaseURL          string
	Variant          string
	FetchConcurrency int
}

// Load reads .env from the working directory when present, then the
// environment. Unset variables take their defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []string
	addErr := func(key string, err error) {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}

	cfg := &Config{
		InputDir:         getEnv("CHESSLOG_INPUT_DIR", "./data/archives"),
		OutputDir:        getEnv("CHESSLOG_OUTPUT_DIR", "./data/out"),
		ProcessedDir:     getEnv("CHESSLOG_PROCESSED_DIR", ""),
		SnapshotPath:     getEnv("CHESSLOG_SNAPSHOT", ""),
		LogLevel:         getEnv("CHESSLOG_LOG_LEVEL", "info"),
		LogFile:          getEnv("CHESSLOG_LOG_FILE", ""),
		MetricsAddr:      getEnv("CHESSLOG_METRICS_ADDR", ""),
		TournamentMarker: getEnv("CHESSLOG_TOURNAMENT_MARKER", pgnlog.DefaultTournamentMarker),
		EvalMarker:       getEnv("CHESSLOG_EVAL_MARKER", game.DefaultEvalMarker),
		SitePrefix:       getEnv("CHESSLOG_SITE_PREFIX", game.DefaultSitePrefix),
		BaseURL:          getEnv("CHESSLOG_BASE_URL", archive.DefaultBaseURL),
		Variant:          getEnv("CHESSLOG_VARIANT", "standard"),
	}

	var err error
	cfg.MaxPlies, err = getEnvInt("CHESSLOG_MAX_PLIES", 0)
	addErr("CHESSLOG_MAX_PLIES", err)
	cfg.SegmentSize, err = getEnvInt("CHESSLOG_SEGMENT_SIZE", segment.DefaultMaxRecords)
	addErr("CHESSLOG_SEGMENT_SIZE", err)
	cfg.FetchConcurrency, err = getEnvInt("CHESSLOG_FETCH_CONCURRENCY", 2)
	addErr("CHESSLOG_FETCH_CONCURRENCY", err)
	cfg.IncludeMoves, err = getEnvBool("CHESSLOG_INCLUDE_MOVES", false)
	addErr("CHESSLOG_INCLUDE_MOVES", err)
	cfg.RandomFingerprints, err = getEnvBool("CHESSLOG_RANDOM_FINGERPRINTS", false)
	addErr("CHESSLOG_RANDOM_FINGERPRINTS", err)
	cfg.PollInterval, err = getEnvDuration("CHESSLOG_POLL_INTERVAL", 10*time.Second)
	addErr("CHESSLOG_POLL_INTERVAL", err)

	cfg.FingerprintSeed = stats.DefaultSeed
	if v := os.Getenv("CHESSLOG_FINGERPRINT_SEED"); v != "" {
		cfg.FingerprintSeed, err = strconv.ParseUint(v, 0, 64)
		addErr("CHESSLOG_FINGERPRINT_SEED", err)
	}
	cfg.Compression, err = segment.ParseCodec(os.Getenv("CHESSLOG_COMPRESSION"))
	addErr("CHESSLOG_COMPRESSION", err)
	cfg.OnCorruptSnapshot, err = stats.ParseCorruptPolicy(os.Getenv("CHESSLOG_ON_CORRUPT_SNAPSHOT"))
	addErr("CHESSLOG_ON_CORRUPT_SNAPSHOT", err)

	if cfg.MaxPlies < 0 {
		errs = append(errs, "CHESSLOG_MAX_PLIES: must not be negative")
	}
	if cfg.SegmentSize <= 0 {
		errs = append(errs, "CHESSLOG_SEGMENT_SIZE: must be positive")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
