package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic text embedder for tests.
//
// Every whitespace-separated token is hashed into one of Dim buckets and the
// resulting bag-of-words vector is L2-normalized. Texts sharing tokens get a
// positive cosine similarity; identical texts score 1.
type HashEmbedder struct {
	Dim int
	// Err, when set, is returned by every Embed call.
	Err error
}

// Embed returns the hashed bag-of-words vector for text.
func (e HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}

	vec := make([]float32, e.Dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(e.Dim))]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}

	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
