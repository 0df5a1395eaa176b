package shardvec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/shardvec/shard"
)

// taskResult is what a shard search task hands back to the coordinator.
type taskResult struct {
	matches []shard.Match
	err     error
}

// Search returns up to limit stored vectors most similar to query by cosine
// similarity, highest score first. Equal scores are ordered by id.
//
// Every non-empty shard is searched in parallel; inactive shards are
// activated first. A shard that does not answer within the search timeout is
// left out of the result instead of failing the search.
func (s *Store) Search(ctx context.Context, query []float32, limit int) ([]SearchResult, error) {
	start := time.Now()

	results, candidates, err := s.search(ctx, query, limit)

	s.metrics.RecordSearch(limit, time.Since(start), err)
	s.logger.LogSearch(ctx, limit, candidates, len(results), err)

	return results, err
}

func (s *Store) search(ctx context.Context, query []float32, limit int) ([]SearchResult, int, error) {
	if limit <= 0 {
		return nil, 0, ErrInvalidLimit
	}

	views, err := s.candidates(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	if len(views) == 0 {
		return []SearchResult{}, 0, nil
	}

	// Saturate so a huge limit cannot wrap to a non-positive fetch size.
	fetch := math.MaxInt
	if limit <= math.MaxInt/s.opts.overFetch {
		fetch = limit * s.opts.overFetch
	}
	similarity := s.similarity

	type pending struct {
		shardID string
		ctx     context.Context
		ch      chan taskResult
	}

	tasks := make([]pending, 0, len(views))
	for _, v := range views {
		// The deadline starts at submission, so time spent queued counts.
		taskCtx, cancel := context.WithTimeout(ctx, s.opts.searchTimeout)
		defer cancel()

		ch := make(chan taskResult, 1)
		err := s.pool.Submit(taskCtx, func() {
			matches := v.Search(taskCtx, query, fetch, similarity)
			ch <- taskResult{matches: matches, err: taskCtx.Err()}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, len(views), ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				s.abandon(ctx, v.ShardID(), err)
				continue
			}
			return nil, len(views), translateError(err)
		}

		tasks = append(tasks, pending{shardID: v.ShardID(), ctx: taskCtx, ch: ch})
	}

	var merged []shard.Match
	for _, t := range tasks {
		var res taskResult
		select {
		case res = <-t.ch:
		case <-t.ctx.Done():
			res = taskResult{err: t.ctx.Err()}
		}

		if res.err != nil {
			if ctx.Err() != nil {
				return nil, len(views), ctx.Err()
			}
			s.abandon(ctx, t.shardID, res.err)
			continue
		}
		merged = append(merged, res.matches...)
	}

	shard.SortMatches(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	results := make([]SearchResult, len(merged))
	for i, m := range merged {
		results[i] = SearchResult{ID: m.ID, Score: m.Score, Metadata: orEmpty(m.Metadata)}
	}

	return results, len(views), nil
}

// candidates snapshots every non-empty shard, activating inactive ones.
//
// Resident shards are captured first so that activations evict shards whose
// view is already taken.
func (s *Store) candidates(ctx context.Context, query []float32) ([]*shard.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(); err != nil {
		return nil, err
	}
	if len(query) != s.dimension {
		return nil, &ErrDimensionMismatch{Expected: s.dimension, Actual: len(query)}
	}

	views := make([]*shard.View, 0, len(s.order))

	var inactive []string
	for _, sid := range s.order {
		e := s.shards[sid]
		if e.IsEmpty() {
			continue
		}
		if !e.Active() {
			inactive = append(inactive, sid)
			continue
		}
		views = append(views, e.Snapshot())
	}

	for _, sid := range inactive {
		e, err := s.activate(ctx, sid)
		if err != nil {
			// Partial results are preferred over failing the search.
			s.logger.WarnContext(ctx, "skipping shard in search", "shard", sid, "error", err)
			continue
		}
		views = append(views, e.Snapshot())
	}

	s.refreshResidency()

	return views, nil
}

func (s *Store) abandon(ctx context.Context, sid string, cause error) {
	err := fmt.Errorf("%w: shard %s: %w", ErrSearchTaskTimeout, sid, cause)
	s.metrics.RecordSearchTimeout(sid)
	s.logger.LogSearchTimeout(ctx, sid, err)
}
