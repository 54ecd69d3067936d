// Package stats keeps cumulative per-player counters across archives so every
// emitted record can carry "as of this game" context without rescanning history.
//
// Counters are keyed by category (the reserved AllCategory plus one per event
// category) and then by player. They only ever grow: game counts increase by one
// per recorded side and maxima never decrease. The fingerprint of a player is
// assigned once under AllCategory and never changes afterwards.
package stats

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AllCategory aggregates every game of a player regardless of category.
const AllCategory = "All"

// DefaultSeed is the fingerprint seed used when none is configured.
const DefaultSeed uint64 = 0x5eed_c0ffee

// Counters are the aggregates for one (category, player).
type Counters struct {
	Games       int64    `json:"games"`
	MaxRating   *int     `json:"max_rating"`
	MaxFaced    *int     `json:"max_faced"`
	Fingerprint *float64 `json:"fingerprint,omitempty"`
}

func (c *Counters) observe(rating, opponentRating *int) {
	c.Games++
	c.MaxRating = maxOf(c.MaxRating, rating)
	c.MaxFaced = maxOf(c.MaxFaced, opponentRating)
}

// Snapshot is a player's state immediately after a recorded game.
type Snapshot struct {
	Fingerprint     float64
	GamesInCategory int64
	GamesTotal      int64
	MaxRating       *int // best rating in the category, nil if never rated
	MaxFaced        *int // best opponent rating in the category, nil if never rated
}

// CorruptPolicy decides what Load does with an unreadable snapshot.
type CorruptPolicy string

const (
	CorruptAbort CorruptPolicy = "abort"
	CorruptReset CorruptPolicy = "reset"
)

// ParseCorruptPolicy validates a policy name; empty selects CorruptAbort.
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch p := CorruptPolicy(strings.ToLower(s)); p {
	case "":
		return CorruptAbort, nil
	case CorruptAbort, CorruptReset:
		return p, nil
	}
	return "", fmt.Errorf("unknown snapshot corruption policy %q", s)
}

// Options configures a Store.
type Options struct {
	Seed      uint64        // fingerprint seed, DefaultSeed when zero
	Random    bool          // draw the seed from the clock instead
	OnCorrupt CorruptPolicy // default CorruptAbort
	Logger    zerolog.Logger
}

// Store is the cumulative counter set. A single writer is expected; the mutex
// only serializes accidental concurrent use.
type Store struct {
	mu         sync.Mutex
	seed       uint64
	categories map[string]map[string]*Counters
}

// New returns an empty store with AllCategory created.
func New(opts Options) *Store {
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	if opts.Random {
		seed = uint64(time.Now().UnixNano())
	}
	return &Store{
		seed:       seed,
		categories: map[string]map[string]*Counters{AllCategory: {}},
	}
}

// RecordGame counts one game for one side. It is not idempotent: callers
// invoke it exactly once per side per game. A nil rating leaves the matching
// maximum unchanged; the current values are returned either way.
func (s *Store) RecordGame(category, player string, rating, opponentRating *int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.counters(AllCategory, player)
	if all.Fingerprint == nil {
		fp := s.fingerprint(player)
		all.Fingerprint = &fp
	}
	all.observe(rating, opponentRating)

	cat := all
	if category != AllCategory {
		cat = s.counters(category, player)
		cat.observe(rating, opponentRating)
	}

	return Snapshot{
		Fingerprint:     *all.Fingerprint,
		GamesInCategory: cat.Games,
		GamesTotal:      all.Games,
		MaxRating:       copyInt(cat.MaxRating),
		MaxFaced:        copyInt(cat.MaxFaced),
	}
}

// Lookup returns a copy of the counters for (category, player).
func (s *Store) Lookup(category, player string) (Counters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[category][player]
	if !ok {
		return Counters{}, false
	}
	return c.clone(), true
}

// Categories returns the category names in sorted order.
func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.categories))
	for name := range s.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Players returns the players of a category in sorted order.
func (s *Store) Players(category string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	players := make([]string, 0, len(s.categories[category]))
	for p := range s.categories[category] {
		players = append(players, p)
	}
	sort.Strings(players)
	return players
}

// Len returns the number of players in a category.
func (s *Store) Len(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories[category])
}

// Reconcile folds a store built independently (for example by a parallel run
// over other archives) into s: game counts add, maxima take the larger value,
// and existing fingerprints win. The two stores are never locked together,
// so concurrent a.Reconcile(b) and b.Reconcile(a) cannot deadlock.
func (s *Store) Reconcile(other *Store) {
	if other == s {
		return
	}
	theirs := other.copyCategories()

	s.mu.Lock()
	defer s.mu.Unlock()
	for category, players := range theirs {
		for player, oc := range players {
			c := s.counters(category, player)
			c.Games += oc.Games
			c.MaxRating = maxOf(c.MaxRating, oc.MaxRating)
			c.MaxFaced = maxOf(c.MaxFaced, oc.MaxFaced)
			if c.Fingerprint == nil && oc.Fingerprint != nil {
				fp := *oc.Fingerprint
				c.Fingerprint = &fp
			}
		}
	}
}

func (s *Store) copyCategories() map[string]map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]Counters, len(s.categories))
	for category, players := range s.categories {
		cp := make(map[string]Counters, len(players))
		for player, c := range players {
			cp[player] = c.clone()
		}
		out[category] = cp
	}
	return out
}

// counters returns the live entry for (category, player), creating it. Caller holds mu.
func (s *Store) counters(category, player string) *Counters {
	players, ok := s.categories[category]
	if !ok {
		players = make(map[string]*Counters)
		s.categories[category] = players
	}
	c, ok := players[player]
	if !ok {
		c = &Counters{}
		players[player] = c
	}
	return c
}

// fingerprint draws a player's value in [0, 1) from a generator seeded by the
// store seed and the player name, so it does not depend on processing order.
func (s *Store) fingerprint(player string) float64 {
	h := fnv.New64a()
	h.Write([]byte(player))
	return rand.New(rand.NewPCG(s.seed, h.Sum64())).Float64()
}

func (c *Counters) clone() Counters {
	out := Counters{
		Games:     c.Games,
		MaxRating: copyInt(c.MaxRating),
		MaxFaced:  copyInt(c.MaxFaced),
	}
	if c.Fingerprint != nil {
		fp := *c.Fingerprint
		out.Fingerprint = &fp
	}
	return out
}

func maxOf(cur, v *int) *int {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		x := *v
		return &x
	}
	return cur
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}
