package shard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/shardvec/metadata"
	"github.com/hupe1980/shardvec/metric"
)

// entryOverhead approximates the per-entry map bookkeeping in bytes.
const entryOverhead = 64

// Match is a single scored search hit.
type Match struct {
	ID       string
	Score    float32
	Metadata metadata.Document
}

// Info is a point-in-time description of a shard.
type Info struct {
	ID            string
	Dimension     int
	Size          int
	Active        bool
	Dirty         bool
	LastAccess    time.Time
	ResidentBytes int64
}

// Option configures a Shard.
type Option func(*Shard)

// WithLogger sets the logger used for skipped entries during search.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shard) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for access tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Shard) {
		if now != nil {
			s.now = now
		}
	}
}

// Shard is a bounded bucket of vectors and their metadata.
//
// A shard is either active (its maps are resident) or inactive (only the
// recorded size survives). All methods are safe for concurrent use.
type Shard struct {
	mu sync.RWMutex

	id        string
	dimension int
	vectors   map[string][]float32
	meta      map[string]metadata.Document
	size      int
	bytes     int64
	active    bool
	dirty     bool

	lastAccess atomic.Int64

	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty, active shard.
//
// A zero dimension is fixed by the first successful Add.
func New(id string, dimension int, opts ...Option) *Shard {
	s := &Shard{
		id:        id,
		dimension: dimension,
		vectors:   make(map[string][]float32),
		meta:      make(map[string]metadata.Document),
		active:    true,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Touch()
	return s
}

// ID returns the shard identifier.
func (s *Shard) ID() string { return s.id }

// Add stores a copy of vector and meta under id, replacing any previous entry.
//
// It returns false if the vector is empty or its length differs from the
// shard dimension.
func (s *Shard) Add(id string, vector []float32, meta metadata.Document) bool {
	if len(vector) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return false
	}
	if s.dimension == 0 {
		s.dimension = len(vector)
	}
	s.ensureMaps()

	if old, ok := s.vectors[id]; ok {
		s.bytes -= entryBytes(id, old, s.meta[id])
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	doc := metadata.CloneIfNeeded(meta)

	s.vectors[id] = vec
	if doc != nil {
		s.meta[id] = doc
	} else {
		delete(s.meta, id)
	}
	s.bytes += entryBytes(id, vec, doc)
	s.size = len(s.vectors)
	s.dirty = true
	s.Touch()

	return true
}

// Remove deletes id and reports whether it was present.
func (s *Shard) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, ok := s.vectors[id]
	if !ok {
		return false
	}

	s.bytes -= entryBytes(id, vec, s.meta[id])
	delete(s.vectors, id)
	delete(s.meta, id)
	s.size = len(s.vectors)
	s.dirty = true
	s.Touch()

	return true
}

// Get returns copies of the vector and metadata stored under id.
func (s *Shard) Get(id string) ([]float32, metadata.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vec, ok := s.vectors[id]
	if !ok {
		return nil, nil, false
	}
	s.Touch()

	out := make([]float32, len(vec))
	copy(out, vec)
	return out, s.meta[id].Clone(), true
}

// Contains reports whether id is resident in the shard.
func (s *Shard) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.vectors[id]
	return ok
}

// IDs returns the resident ids in unspecified order.
func (s *Shard) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	return ids
}

// Search scores every resident vector against query and returns the best
// limit matches, highest score first.
func (s *Shard) Search(ctx context.Context, query []float32, limit int, fn metric.SimilarityFunc) []Match {
	return s.Snapshot().Search(ctx, query, limit, fn)
}

// Unload drops the resident data but keeps the recorded size.
func (s *Shard) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = nil
	s.meta = nil
	s.bytes = 0
	s.active = false
}

// Reset empties the shard and marks it active.
func (s *Shard) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = make(map[string][]float32)
	s.meta = make(map[string]metadata.Document)
	s.size = 0
	s.bytes = 0
	s.active = true
	s.dirty = true
	s.Touch()
}

// SetSize records the size of an inactive shard.
func (s *Shard) SetSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.size = n
	}
}

// IsEmpty reports whether the shard holds no vectors.
func (s *Shard) IsEmpty() bool { return s.Size() == 0 }

// Size returns the number of vectors, or the last recorded count while inactive.
func (s *Shard) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Dimension returns the vector dimension, or 0 if not fixed yet.
func (s *Shard) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Active reports whether the shard data is resident.
func (s *Shard) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// MarkActive marks an empty, never persisted shard as resident.
func (s *Shard) MarkActive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureMaps()
	s.active = true
	s.Touch()
}

// Dirty reports whether the shard changed since it was last persisted.
func (s *Shard) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// MarkClean clears the dirty flag after a successful write.
func (s *Shard) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// LastAccess returns the time of the last add, remove, get or search.
func (s *Shard) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Touch records an access.
func (s *Shard) Touch() {
	s.lastAccess.Store(s.now().UnixNano())
}

// ResidentBytes estimates the memory held by resident entries.
func (s *Shard) ResidentBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

// Info returns a snapshot of the shard state.
func (s *Shard) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		ID:            s.id,
		Dimension:     s.dimension,
		Size:          s.size,
		Active:        s.active,
		Dirty:         s.dirty,
		LastAccess:    s.LastAccess(),
		ResidentBytes: s.bytes,
	}
}

func (s *Shard) ensureMaps() {
	if s.vectors == nil {
		s.vectors = make(map[string][]float32)
	}
	if s.meta == nil {
		s.meta = make(map[string]metadata.Document)
	}
}

func entryBytes(id string, vec []float32, doc metadata.Document) int64 {
	return int64(len(id)+4*len(vec)+entryOverhead) + int64(len(doc))*entryOverhead
}
