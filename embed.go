package shardvec

import (
	"context"
	"fmt"

	"github.com/hupe1980/shardvec/metadata"
)

// Embedder turns text into a vector of the store's dimension.
//
// The store ships no embedding model; callers plug in their own provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AddText embeds text with e and stores the vector under id.
func (s *Store) AddText(ctx context.Context, e Embedder, id, text string, meta metadata.Document) error {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %q: %w", id, err)
	}
	return s.Add(ctx, id, vec, meta)
}

// SearchText embeds text with e and searches for the closest vectors.
func (s *Store) SearchText(ctx context.Context, e Embedder, text string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.Search(ctx, vec, limit)
}
