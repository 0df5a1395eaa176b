// Package testutil provides testing utilities for shardvec.
//
// This package is intended for use in tests and examples only. It provides
// seeded random vector generators, an exhaustive top-k scan to compare search
// results against, and a deterministic text embedder.
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(100, 128)
//	truth := testutil.ExactTopK(query, dataset, k, metric.CosineSimilarity)
package testutil
