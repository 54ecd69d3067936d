package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrSnapshotCorrupt is returned when a snapshot exists but cannot be decoded.
var ErrSnapshotCorrupt = errors.New("statistics snapshot corrupt")

// snapshotFile is the on-disk form: category -> player -> counters.
type snapshotFile map[string]map[string]*Counters

// LegacyFingerprintSuffix marks fingerprint entries in the flat snapshot
// form, where a category maps each player to a bare game count and "All"
// also maps player+LegacyFingerprintSuffix to the player's fingerprint.
const LegacyFingerprintSuffix = "_random"

// Load reads a zstd-compressed JSON snapshot. A missing file is the first run
// and yields a fresh store. An unreadable file fails with ErrSnapshotCorrupt
// unless opts.OnCorrupt is CorruptReset.
func Load(path string, opts Options) (*Store, error) {
	s := New(opts)
	log := opts.Logger

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Msg("no statistics snapshot, starting empty")
			return s, nil
		}
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	cats, legacy, err := decodeSnapshot(f)
	if err != nil {
		if opts.OnCorrupt == CorruptReset {
			log.Warn().Err(err).Str("path", path).Msg("statistics snapshot unreadable, resetting to empty")
			return s, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshotCorrupt, path, err)
	}

	for category, players := range cats {
		if players == nil {
			players = make(map[string]*Counters)
		}
		for player, c := range players {
			if c == nil {
				delete(players, player)
			}
		}
		s.categories[category] = players
	}
	if _, ok := s.categories[AllCategory]; !ok {
		s.categories[AllCategory] = make(map[string]*Counters)
	}

	if legacy {
		log.Warn().Str("path", path).Msg("imported flat snapshot, the next save rewrites it; rating maxima start empty")
	}
	log.Info().
		Str("path", path).
		Int("categories", len(s.categories)).
		Int("players", len(s.categories[AllCategory])).
		Msg("loaded statistics snapshot")
	return s, nil
}

func decodeSnapshot(f *os.File) (snapshotFile, bool, error) {
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, false, err
	}
	defer dec.Close()

	var raw map[string]map[string]json.RawMessage
	if err := json.NewDecoder(dec).Decode(&raw); err != nil {
		return nil, false, err
	}
	return fromRaw(raw)
}

// fromRaw accepts both the structured form and the flat form. A flat key
// ending in LegacyFingerprintSuffix is a fingerprint only when its stem is
// also present; otherwise it is a player of that name.
func fromRaw(raw map[string]map[string]json.RawMessage) (snapshotFile, bool, error) {
	cats := make(snapshotFile, len(raw))
	legacy := false
	for category, players := range raw {
		cat := make(map[string]*Counters, len(players))
		fingerprints := make(map[string]float64)
		for player, v := range players {
			switch {
			case len(v) == 0 || string(v) == "null":
				continue
			case v[0] == '{':
				var c Counters
				if err := json.Unmarshal(v, &c); err != nil {
					return nil, false, fmt.Errorf("%s/%s: %w", category, player, err)
				}
				cat[player] = &c
			default:
				legacy = true
				var n float64
				if err := json.Unmarshal(v, &n); err != nil {
					return nil, false, fmt.Errorf("%s/%s: %w", category, player, err)
				}
				if stem, ok := strings.CutSuffix(player, LegacyFingerprintSuffix); ok {
					if _, counted := players[stem]; counted {
						fingerprints[stem] = n
						continue
					}
				}
				cat[player] = &Counters{Games: int64(n)}
			}
		}
		if category == AllCategory {
			for player, fp := range fingerprints {
				c, ok := cat[player]
				if !ok {
					c = &Counters{}
					cat[player] = c
				}
				v := fp
				c.Fingerprint = &v
			}
		}
		cats[category] = cat
	}
	return cats, legacy, nil
}

// Save writes the full store, replacing any previous snapshot atomically.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", tmpPath, err)
	}
	if err := s.encode(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot %s: %w", path, err)
	}
	return nil
}

func (s *Store) encode(f *os.File) error {
	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(snapshotFile(s.categories)); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
