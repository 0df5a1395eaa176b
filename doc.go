// Package shardvec provides a memory-bounded, sharded vector store with exact
// cosine similarity search.
//
// Vectors are appended to fixed-capacity shards. Only a configurable number
// of shards stay resident; the least recently used ones are spilled to a
// BlobStore and reloaded on demand. Searches scan every shard in parallel and
// merge the per-shard results.
//
// # Quick Start
//
//	ctx := context.Background()
//	store, _ := shardvec.New(384,
//	    shardvec.WithChunkCapacity(5000),
//	    shardvec.WithMaxActiveShards(4),
//	)
//	defer store.Close()
//
//	_ = store.Add(ctx, "doc-1", vector, metadata.Document{"lang": metadata.String("go")})
//	results, _ := store.Search(ctx, query, 10)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Score, r.Metadata)
//	}
//
// # Sharding
//
// Shards are named shard_1, shard_2, ... in creation order. As soon as the
// current shard holds ChunkCapacity vectors a new, empty shard becomes
// current. Adding an existing id moves it: the old entry is removed first, so
// an id lives in exactly one shard.
//
// # Memory Bound
//
// At most MaxActiveShards shards are resident. Before a shard is activated the
// least recently accessed resident shards are evicted; modified ones are
// written to the spill store (WithSpillStore, in memory by default).
//
// # Search
//
// Each non-empty shard is searched by a worker pool task that must finish
// within the search timeout. Shards that time out are left out of the result
// rather than failing the search:
//
//	store, _ := shardvec.New(384,
//	    shardvec.WithParallelism(8),
//	    shardvec.WithSearchTimeout(200*time.Millisecond),
//	)
//
// # Persistence
//
//	_ = store.Save(ctx, "./data/index")       // index.meta + index_shards/
//	store, _ = shardvec.Open(ctx, "./data/index")
//
// SaveTo and LoadFrom accept any BlobStore, including the s3 and minio
// implementations. Loading reads the current shard and the most populated
// shards eagerly; the rest are read on first access.
//
// # Observability
//
// Logging uses log/slog through Logger (WithLogger, WithLogLevel). Metrics are
// reported to a MetricsCollector; see the promcollector package for
// Prometheus.
package shardvec
