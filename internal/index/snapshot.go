// Package index maintains the inverted indexes from entity name (player,
// champion) to the match IDs that reference it. An index is an immutable
// Snapshot behind an atomic pointer; a rebuild constructs a new snapshot and
// swaps it in, so readers never block and never see a partial build.
package index

import (
	"slices"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Entry is the posting list of one entity. Count always equals
// len(RecordIDs) and RecordIDs hold no duplicates.
type Entry struct {
	Key       string   `json:"key"`
	RecordIDs []string `json:"recordIds"`
	Count     int      `json:"count"`
}

// Snapshot is one complete build of an index. It is never mutated after
// Build returns it.
type Snapshot struct {
	kind    string
	entries map[string]*Entry
	// ordinals holds, per entity, the build positions of its records.
	ordinals map[string]*roaring.Bitmap
	// records maps a build position back to its match ID; positions is the
	// inverse.
	records   []string
	positions map[string]uint32
	builtAt   time.Time
	report    BuildReport
}

func emptySnapshot(kind string) *Snapshot {
	return &Snapshot{
		kind:      kind,
		entries:   make(map[string]*Entry),
		ordinals:  make(map[string]*roaring.Bitmap),
		positions: make(map[string]uint32),
	}
}

func (s *Snapshot) Kind() string { return s.kind }

// BuiltAt is the zero time for the empty snapshot an index starts with.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

func (s *Snapshot) Report() BuildReport { return s.report }

// EntityCount is the number of distinct keys.
func (s *Snapshot) EntityCount() int { return len(s.entries) }

// RecordCount is the number of records that made it into the build.
func (s *Snapshot) RecordCount() int { return len(s.records) }

// Lookup returns the match IDs for key in discovery order. An unknown key
// yields an empty, non-nil slice.
func (s *Snapshot) Lookup(key string) []string {
	e, ok := s.entries[key]
	if !ok {
		return []string{}
	}
	return slices.Clone(e.RecordIDs)
}

// Count is len(Lookup(key)) without the copy.
func (s *Snapshot) Count(key string) int {
	if e, ok := s.entries[key]; ok {
		return e.Count
	}
	return 0
}

// Contains reports whether the entity is referenced by the given match.
func (s *Snapshot) Contains(key, recordID string) bool {
	bm, ok := s.ordinals[key]
	if !ok {
		return false
	}
	pos, ok := s.positions[recordID]
	return ok && bm.Contains(pos)
}

// Entry returns a copy of the entry for key.
func (s *Snapshot) Entry(key string) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{Key: e.Key, RecordIDs: slices.Clone(e.RecordIDs), Count: e.Count}, true
}

// Top returns up to n entities ordered by match count descending, ties by
// key. n <= 0 returns every entity. Record IDs are not included.
func (s *Snapshot) Top(n int) []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Entry{Key: e.Key, Count: e.Count})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Key, b.Key)
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Intersect returns the match IDs referenced by every key, in discovery
// order. No keys, or any unknown key, gives an empty slice.
func (s *Snapshot) Intersect(keys ...string) []string {
	if len(keys) == 0 {
		return []string{}
	}
	bitmaps := make([]*roaring.Bitmap, 0, len(keys))
	for _, k := range keys {
		bm, ok := s.ordinals[k]
		if !ok {
			return []string{}
		}
		bitmaps = append(bitmaps, bm)
	}
	joined := roaring.FastAnd(bitmaps...)
	out := make([]string, 0, joined.GetCardinality())
	it := joined.Iterator()
	for it.HasNext() {
		out = append(out, s.records[it.Next()])
	}
	return out
}
