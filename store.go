package shardvec

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/shardvec/blobstore"
	"github.com/hupe1980/shardvec/internal/workerpool"
	"github.com/hupe1980/shardvec/metadata"
	"github.com/hupe1980/shardvec/metric"
	"github.com/hupe1980/shardvec/resource"
	"github.com/hupe1980/shardvec/shard"
)

// spillPrefix is the blob name prefix of evicted shards in the spill store.
const spillPrefix = "spill/"

// Record is a stored vector with its metadata.
//
// Metadata is never nil; a vector stored without metadata has an empty Document.
type Record struct {
	ID       string
	Vector   []float32
	Metadata metadata.Document
}

// SearchResult is a single search hit. Metadata is never nil.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata metadata.Document
}

// ShardStats describes one shard in Stats.
type ShardStats struct {
	ID         string
	Size       int
	Active     bool
	Dirty      bool
	LastAccess time.Time
}

// Stats is a point-in-time summary of a store.
type Stats struct {
	TotalVectors     int
	Dimension        int
	ChunkCapacity    int
	MaxActiveShards  int
	ShardCount       int
	ActiveShardCount int
	CurrentShardID   string
	ResidentBytes    int64
	Initialized      bool
	Shards           []ShardStats
}

// blobRef locates the serialized form of an inactive shard.
type blobRef struct {
	store blobstore.BlobStore
	name  string
}

type shardEntry struct {
	*shard.Shard
	seq     int
	backing *blobRef
}

// Store is a sharded, memory-bounded vector store.
//
// Vectors are appended to the current shard until it reaches the chunk
// capacity, then a new shard becomes current. At most maxActiveShards shards
// are resident; the least recently used ones are spilled and reloaded on
// demand. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	dimension int
	opts      options
	logger    *Logger
	metrics   MetricsCollector
	rc        *resource.Controller
	spill     blobstore.BlobStore
	pool      *workerpool.Pool

	// similarity scores candidates; replaced only in tests.
	similarity metric.SimilarityFunc

	shards         map[string]*shardEntry
	order          []string
	idIndex        map[string]string
	currentShardID string
	initialized    bool
	closed         bool
}

// New creates an empty store for vectors of the given dimension.
//
// Example:
//
//	store, err := shardvec.New(384,
//	    shardvec.WithChunkCapacity(5000),
//	    shardvec.WithMaxActiveShards(4),
//	)
func New(dimension int, optFns ...Option) (*Store, error) {
	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}

	opts, err := applyOptions(optFns)
	if err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		IOLimitBytesPerSec: opts.ioLimit,
		MaxConcurrentIO:    int64(opts.parallelism),
	})

	s := &Store{
		dimension:  dimension,
		opts:       opts,
		logger:     opts.logger,
		metrics:    opts.metricsCollector,
		rc:         rc,
		spill:      resource.WrapStore(opts.spillStore, rc),
		pool:       workerpool.New(opts.parallelism),
		similarity: metric.CosineSimilarity,
	}
	s.bootstrap()
	s.initialized = true

	s.logger.Info("store created",
		"dimension", dimension,
		"chunk_capacity", opts.chunkCapacity,
		"max_active_shards", opts.maxActiveShards,
		"parallelism", opts.parallelism,
	)

	return s, nil
}

// bootstrap resets the routing state to a single empty shard.
// Callers must hold s.mu.
func (s *Store) bootstrap() {
	s.shards = make(map[string]*shardEntry)
	s.order = nil
	s.idIndex = make(map[string]string)
	s.currentShardID = s.appendShard().ID()
	s.refreshResidency()
}

func orEmpty(d metadata.Document) metadata.Document {
	if d == nil {
		return metadata.Document{}
	}
	return d
}

func shardID(seq int) string {
	return fmt.Sprintf("shard_%d", seq)
}

// appendShard creates the next shard without applying the activation policy.
func (s *Store) appendShard() *shardEntry {
	seq := len(s.order) + 1
	id := shardID(seq)

	e := &shardEntry{
		Shard: shard.New(id, s.dimension,
			shard.WithLogger(s.logger.Logger),
			shard.WithClock(s.opts.now),
		),
		seq: seq,
	}
	s.shards[id] = e
	s.order = append(s.order, id)
	return e
}

func (s *Store) checkUsable() error {
	if s.closed {
		return ErrClosed
	}
	if !s.initialized {
		return ErrUninitialized
	}
	return nil
}

// Dimension returns the vector dimension.
func (s *Store) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension
}

// Add stores vector and meta under id.
//
// An existing id is moved: its old entry is removed before the new one is
// written to the current shard. If shard I/O fails after the removal, the
// error is returned and the id is no longer stored.
func (s *Store) Add(ctx context.Context, id string, vector []float32, meta metadata.Document) error {
	start := time.Now()

	sid, err := s.add(ctx, id, vector, meta)

	s.metrics.RecordAdd(time.Since(start), err)
	s.logger.LogAdd(ctx, id, sid, err)

	return err
}

func (s *Store) add(ctx context.Context, id string, vector []float32, meta metadata.Document) (string, error) {
	if id == "" {
		return "", ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(); err != nil {
		return "", err
	}
	if len(vector) != s.dimension {
		return "", &ErrDimensionMismatch{Expected: s.dimension, Actual: len(vector)}
	}

	if sid, ok := s.idIndex[id]; ok {
		owner, err := s.activate(ctx, sid)
		if err != nil {
			return "", err
		}
		owner.Remove(id)
		delete(s.idIndex, id)
	}

	target, err := s.target(ctx)
	if err != nil {
		return "", err
	}
	if !target.Add(id, vector, meta) {
		return "", &ErrDimensionMismatch{Expected: s.dimension, Actual: len(vector)}
	}
	s.idIndex[id] = target.ID()

	if target.Size() >= s.opts.chunkCapacity {
		if err := s.rollover(ctx); err != nil {
			// The vector is stored; only the next shard could not be prepared.
			s.logger.WarnContext(ctx, "rollover failed", "shard", target.ID(), "error", err)
		}
	}

	s.refreshResidency()

	return target.ID(), nil
}

// target returns the active current shard, rolling over if it is full.
func (s *Store) target(ctx context.Context) (*shardEntry, error) {
	if s.shards[s.currentShardID].Size() >= s.opts.chunkCapacity {
		if err := s.rollover(ctx); err != nil {
			return nil, err
		}
	}
	return s.activate(ctx, s.currentShardID)
}

// rollover creates a new shard and makes it current.
func (s *Store) rollover(ctx context.Context) error {
	next := shardID(len(s.order) + 1)

	// The new shard is born active, so it needs a slot like any activation.
	if err := s.makeRoom(ctx, next); err != nil {
		return err
	}

	prev := s.currentShardID
	s.currentShardID = s.appendShard().ID()
	s.logger.LogRollover(ctx, prev, s.currentShardID)

	return nil
}

// Get returns the record stored under id.
//
// A missing id is reported as ok == false with a nil error.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	start := time.Now()

	rec, ok, err := s.get(ctx, id)

	s.metrics.RecordGet(time.Since(start), err)

	return rec, ok, err
}

func (s *Store) get(ctx context.Context, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(); err != nil {
		return Record{}, false, err
	}

	sid, ok := s.idIndex[id]
	if !ok {
		return Record{}, false, nil
	}

	e, err := s.activate(ctx, sid)
	if err != nil {
		return Record{}, false, err
	}
	defer s.refreshResidency()

	vec, meta, ok := e.Get(id)
	if !ok {
		return Record{}, false, nil
	}

	return Record{ID: id, Vector: vec, Metadata: orEmpty(meta)}, true, nil
}

// Delete removes id and reports whether it was present.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()

	found, err := s.delete(ctx, id)

	s.metrics.RecordDelete(time.Since(start), err)
	s.logger.LogDelete(ctx, id, found, err)

	return found, err
}

func (s *Store) delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(); err != nil {
		return false, err
	}

	sid, ok := s.idIndex[id]
	if !ok {
		return false, nil
	}

	e, err := s.activate(ctx, sid)
	if err != nil {
		return false, err
	}

	e.Remove(id)
	delete(s.idIndex, id)
	s.refreshResidency()

	return true, nil
}

// Clear removes every vector and returns how many were removed.
//
// Only the first shard survives, empty and active. Clear also recovers a
// store left uninitialized by a failed Load.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.idIndex)

	s.dropSpill(context.Background())
	s.bootstrap()
	s.initialized = true

	s.logger.Info("store cleared", "removed", n)

	return n
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idIndex)
}

// Contains reports whether id is stored.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.idIndex[id]
	return ok
}

// Stats returns a summary of the store and its shards in creation order.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalVectors:    len(s.idIndex),
		Dimension:       s.dimension,
		ChunkCapacity:   s.opts.chunkCapacity,
		MaxActiveShards: s.opts.maxActiveShards,
		ShardCount:      len(s.order),
		CurrentShardID:  s.currentShardID,
		Initialized:     s.initialized,
		Shards:          make([]ShardStats, 0, len(s.order)),
	}

	for _, sid := range s.order {
		info := s.shards[sid].Info()
		if info.Active {
			st.ActiveShardCount++
			st.ResidentBytes += info.ResidentBytes
		}
		st.Shards = append(st.Shards, ShardStats{
			ID:         info.ID,
			Size:       info.Size,
			Active:     info.Active,
			Dirty:      info.Dirty,
			LastAccess: info.LastAccess,
		})
	}

	return st
}

// Close releases the search workers.
//
// Close is idempotent. Add, Get, Delete, Search, Save and Load return
// ErrClosed afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pool.Close()
	s.logger.Info("store closed")

	return nil
}

// activate makes sid resident, evicting other shards as needed.
// Callers must hold s.mu.
func (s *Store) activate(ctx context.Context, sid string) (*shardEntry, error) {
	e, ok := s.shards[sid]
	if !ok {
		return nil, fmt.Errorf("unknown shard %q", sid)
	}
	if e.Active() {
		e.Touch()
		return e, nil
	}

	if err := s.makeRoom(ctx, sid); err != nil {
		return nil, err
	}

	start := time.Now()
	err := s.load(ctx, e)
	s.metrics.RecordActivation(sid, time.Since(start), err)
	s.logger.LogActivation(ctx, sid, e.Size(), err)

	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) load(ctx context.Context, e *shardEntry) error {
	want := e.Size()

	if e.backing == nil {
		if want != 0 {
			return &ShardIOError{Op: "read", Shard: e.ID(), Err: fmt.Errorf("%w: no stored data for %d vectors", ErrCorruptShard, want)}
		}
		e.MarkActive()
		return nil
	}

	data, err := e.backing.store.Get(ctx, e.backing.name)
	if err != nil {
		return &ShardIOError{Op: "read", Shard: e.ID(), Path: e.backing.name, Err: err}
	}
	if err := e.UnmarshalBinary(data); err != nil {
		return &ShardIOError{Op: "read", Shard: e.ID(), Path: e.backing.name, Err: err}
	}
	if got := e.Size(); got != want {
		e.Unload()
		e.SetSize(want)
		return &ShardIOError{Op: "read", Shard: e.ID(), Path: e.backing.name, Err: fmt.Errorf("%w: %d vectors, want %d", ErrCorruptShard, got, want)}
	}

	return nil
}

// makeRoom evicts least recently used shards until one more can be active.
// exclude is never evicted.
func (s *Store) makeRoom(ctx context.Context, exclude string) error {
	var active []*shardEntry
	for _, sid := range s.order {
		if e := s.shards[sid]; sid != exclude && e.Active() {
			active = append(active, e)
		}
	}

	excess := len(active) - s.opts.maxActiveShards + 1
	if excess <= 0 {
		return nil
	}

	slices.SortStableFunc(active, func(a, b *shardEntry) int {
		if c := a.LastAccess().Compare(b.LastAccess()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	for _, e := range active[:excess] {
		if err := s.evict(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// evict writes a modified shard to the spill store and unloads it.
func (s *Store) evict(ctx context.Context, e *shardEntry) error {
	spilled := false

	switch {
	case e.IsEmpty():
		s.releaseSpill(ctx, e)
	case e.Dirty() || e.backing == nil:
		name := spillPrefix + e.ID() + ".bin"

		data, err := e.Encode(s.opts.compression)
		if err == nil {
			err = s.spill.Put(ctx, name, data)
		}
		if err != nil {
			err = &ShardIOError{Op: "write", Shard: e.ID(), Path: name, Err: err}
			s.logger.LogEviction(ctx, e.ID(), false, err)
			return err
		}

		e.backing = &blobRef{store: s.spill, name: name}
		e.MarkClean()
		spilled = true
	}

	e.Unload()

	s.metrics.RecordEviction(e.ID(), spilled)
	s.logger.LogEviction(ctx, e.ID(), spilled, nil)

	return nil
}

// releaseSpill forgets the backing of an empty shard and frees its spill blob.
func (s *Store) releaseSpill(ctx context.Context, e *shardEntry) {
	if e.backing != nil && e.backing.store == s.spill {
		if err := s.spill.Delete(ctx, e.backing.name); err != nil {
			s.logger.WarnContext(ctx, "failed to delete spilled shard", "shard", e.ID(), "error", err)
		}
	}
	e.backing = nil
}

// dropSpill frees every spill blob owned by the current shards.
func (s *Store) dropSpill(ctx context.Context) {
	for _, sid := range s.order {
		s.releaseSpill(ctx, s.shards[sid])
	}
}

// refreshResidency publishes the active shard count and resident bytes.
func (s *Store) refreshResidency() {
	var active int
	var bytes int64
	for _, sid := range s.order {
		if e := s.shards[sid]; e.Active() {
			active++
			bytes += e.ResidentBytes()
		}
	}
	s.rc.SetResident(bytes)
	s.metrics.RecordResidency(active, bytes)
}
