package shard

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/hupe1980/shardvec/metadata"
	"github.com/hupe1980/shardvec/metric"
)

// ctxCheckInterval is how many vectors are scored between context checks.
const ctxCheckInterval = 256

type viewEntry struct {
	id   string
	vec  []float32
	meta metadata.Document
}

// View is an immutable copy of a shard's entries.
//
// Stored vectors and documents are never mutated in place, so a view shares
// them with the shard and stays valid after the shard changes or unloads.
type View struct {
	id        string
	dimension int
	entries   []viewEntry
	logger    *slog.Logger
}

// Snapshot captures the resident entries under the read lock.
func (s *Shard) Snapshot() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.Touch()

	v := &View{
		id:        s.id,
		dimension: s.dimension,
		entries:   make([]viewEntry, 0, len(s.vectors)),
		logger:    s.logger,
	}
	for id, vec := range s.vectors {
		v.entries = append(v.entries, viewEntry{id: id, vec: vec, meta: s.meta[id]})
	}
	return v
}

// ShardID returns the id of the shard the view was taken from.
func (v *View) ShardID() string { return v.id }

// Len returns the number of entries in the view.
func (v *View) Len() int { return len(v.entries) }

// Search scores every entry against query and returns the best limit
// matches sorted by descending score, ties broken by id.
//
// Entries whose score cannot be computed are logged and skipped. The scan
// stops early when ctx is done.
func (v *View) Search(ctx context.Context, query []float32, limit int, fn metric.SimilarityFunc) []Match {
	if limit <= 0 || len(v.entries) == 0 {
		return nil
	}
	if fn == nil {
		fn = metric.CosineSimilarity
	}
	if v.dimension != 0 && len(query) != v.dimension {
		v.logger.Warn("query dimension mismatch", "shard", v.id, "expected", v.dimension, "actual", len(query))
		return nil
	}

	matches := make([]Match, 0, len(v.entries))
	for i, e := range v.entries {
		if i%ctxCheckInterval == 0 && ctx.Err() != nil {
			break
		}

		score, err := fn(query, e.vec)
		if err != nil {
			v.logger.Warn("skipping vector", "shard", v.id, "id", e.id, "error", err)
			continue
		}
		if math.IsNaN(float64(score)) {
			v.logger.Warn("skipping vector with NaN score", "shard", v.id, "id", e.id)
			continue
		}

		matches = append(matches, Match{ID: e.id, Score: score, Metadata: e.meta})
	}

	SortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	for i := range matches {
		matches[i].Metadata = matches[i].Metadata.Clone()
	}
	return matches
}

// SortMatches orders matches by descending score, ties broken by ascending id.
func SortMatches(matches []Match) {
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
