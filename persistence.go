package shardvec

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/shardvec/blobstore"
	"github.com/hupe1980/shardvec/codec"
	"github.com/hupe1980/shardvec/resource"
)

// Meta file layout:
//
//	magic "SVMETA" | version u16 | codec name length u8 | codec name | record
const (
	metaMagic         = "SVMETA"
	metaFormatVersion = uint16(1)
	metaSuffix        = ".meta"
	shardsSuffix      = "_shards/"
)

// storeMeta is the codec-encoded body of the meta file.
type storeMeta struct {
	Version         int               `json:"version"`
	Dimension       int               `json:"dimension"`
	ChunkCapacity   int               `json:"chunk_capacity"`
	MaxActiveShards int               `json:"max_active_shards"`
	Parallelism     int               `json:"parallelism"`
	IDIndex         map[string]string `json:"id_index"`
	CurrentShardID  string            `json:"current_shard_id"`
	Shards          []string          `json:"shards"`
}

func metaName(name string) string { return name + metaSuffix }

func shardBlobName(name, sid string) string { return name + shardsSuffix + sid + ".bin" }

// Save writes the store to path.meta and the path_shards directory.
//
// A failed Save leaves the in-memory store unchanged.
func (s *Store) Save(ctx context.Context, path string) error {
	return s.SaveTo(ctx, blobstore.NewLocalStore(filepath.Dir(path)), filepath.Base(path))
}

// Load replaces the store contents with the state saved at path.
//
// On failure the store is reset and stays uninitialized until a successful
// Load or Clear.
func (s *Store) Load(ctx context.Context, path string) error {
	return s.LoadFrom(ctx, blobstore.NewLocalStore(filepath.Dir(path)), filepath.Base(path))
}

// SaveTo writes the store into bs under name.meta and name_shards/.
//
// Shards are written concurrently; the meta file is written last so a reader
// never sees a meta file that references missing shards.
func (s *Store) SaveTo(ctx context.Context, bs blobstore.BlobStore, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.saveTo(ctx, resource.WrapStore(bs, s.rc), name)
	s.logger.LogSave(ctx, name, len(s.order), err)

	return err
}

func (s *Store) saveTo(ctx context.Context, bs blobstore.BlobStore, name string) error {
	if err := s.checkUsable(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.parallelism)

	for _, sid := range s.order {
		e := s.shards[sid]
		blob := shardBlobName(name, sid)

		g.Go(func() error {
			var data []byte
			var err error

			if !e.Active() && e.backing != nil {
				// The stored form is self-describing; copy it as is.
				data, err = e.backing.store.Get(gctx, e.backing.name)
				if err != nil {
					return &ShardIOError{Op: "read", Shard: sid, Path: e.backing.name, Err: err}
				}
			} else {
				data, err = e.Encode(s.opts.compression)
				if err != nil {
					return &ShardIOError{Op: "write", Shard: sid, Path: blob, Err: err}
				}
			}

			if err := bs.Put(gctx, blob, data); err != nil {
				return &ShardIOError{Op: "write", Shard: sid, Path: blob, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	data, err := s.encodeMeta()
	if err != nil {
		return &ShardIOError{Op: "write", Path: metaName(name), Err: err}
	}
	if err := bs.Put(ctx, metaName(name), data); err != nil {
		return &ShardIOError{Op: "write", Path: metaName(name), Err: err}
	}

	return nil
}

func (s *Store) encodeMeta() ([]byte, error) {
	rec := storeMeta{
		Version:         int(metaFormatVersion),
		Dimension:       s.dimension,
		ChunkCapacity:   s.opts.chunkCapacity,
		MaxActiveShards: s.opts.maxActiveShards,
		Parallelism:     s.opts.parallelism,
		IDIndex:         s.idIndex,
		CurrentShardID:  s.currentShardID,
		Shards:          s.order,
	}

	c := s.opts.codec
	body, err := c.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode meta with %s: %w", c.Name(), err)
	}

	out := make([]byte, 0, len(metaMagic)+3+len(c.Name())+len(body))
	out = append(out, metaMagic...)
	out = binary.LittleEndian.AppendUint16(out, metaFormatVersion)
	out = append(out, byte(len(c.Name())))
	out = append(out, c.Name()...)
	return append(out, body...), nil
}

func decodeMeta(data []byte) (*storeMeta, error) {
	if len(data) < len(metaMagic)+3 || string(data[:len(metaMagic)]) != metaMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptMeta)
	}
	data = data[len(metaMagic):]

	if v := binary.LittleEndian.Uint16(data); v == 0 || v > metaFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptMeta, v)
	}
	n := int(data[2])
	data = data[3:]
	if len(data) < n {
		return nil, fmt.Errorf("%w: truncated codec name", ErrCorruptMeta)
	}

	c, ok := codec.ByName(string(data[:n]))
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrCorruptMeta, data[:n])
	}

	var rec storeMeta
	if err := c.Unmarshal(data[n:], &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMeta, err)
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *storeMeta) validate() error {
	switch {
	case m.Dimension <= 0:
		return fmt.Errorf("%w: dimension %d", ErrCorruptMeta, m.Dimension)
	case m.ChunkCapacity <= 0:
		return fmt.Errorf("%w: chunk capacity %d", ErrCorruptMeta, m.ChunkCapacity)
	case m.MaxActiveShards <= 0:
		return fmt.Errorf("%w: max active shards %d", ErrCorruptMeta, m.MaxActiveShards)
	case len(m.Shards) == 0:
		return fmt.Errorf("%w: no shards", ErrCorruptMeta)
	}

	known := make(map[string]struct{}, len(m.Shards))
	for i, sid := range m.Shards {
		// Shard ids are positional; routing derives the next id from the count.
		if sid != shardID(i+1) {
			return fmt.Errorf("%w: shard %d is %q", ErrCorruptMeta, i+1, sid)
		}
		known[sid] = struct{}{}
	}
	if _, ok := known[m.CurrentShardID]; !ok {
		return fmt.Errorf("%w: unknown current shard %q", ErrCorruptMeta, m.CurrentShardID)
	}
	for id, sid := range m.IDIndex {
		if _, ok := known[sid]; !ok || id == "" {
			return fmt.Errorf("%w: id %q references unknown shard %q", ErrCorruptMeta, id, sid)
		}
	}
	return nil
}

// LoadFrom replaces the store contents with the state saved in bs under name.
//
// The current shard and the most referenced shards are read eagerly, up to
// the active shard bound; the rest are read on first access.
func (s *Store) LoadFrom(ctx context.Context, bs blobstore.BlobStore, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	dim, capacity, maxActive := s.dimension, s.opts.chunkCapacity, s.opts.maxActiveShards

	err := s.loadFrom(ctx, resource.WrapStore(bs, s.rc), name)
	if err != nil {
		s.dropSpill(ctx)
		s.dimension, s.opts.chunkCapacity, s.opts.maxActiveShards = dim, capacity, maxActive
		s.bootstrap()
		s.initialized = false
	}
	s.logger.LogLoad(ctx, name, len(s.idIndex), err)

	return err
}

func (s *Store) loadFrom(ctx context.Context, bs blobstore.BlobStore, name string) error {
	rec, err := readMeta(ctx, bs, name)
	if err != nil {
		return err
	}
	return s.restore(ctx, rec, bs, name)
}

func readMeta(ctx context.Context, bs blobstore.BlobStore, name string) (*storeMeta, error) {
	data, err := bs.Get(ctx, metaName(name))
	if err != nil {
		return nil, &ShardIOError{Op: "read", Path: metaName(name), Err: err}
	}
	rec, err := decodeMeta(data)
	if err != nil {
		return nil, &ShardIOError{Op: "read", Path: metaName(name), Err: err}
	}
	return rec, nil
}

// restore rebuilds the routing state from rec. Callers must hold s.mu.
func (s *Store) restore(ctx context.Context, rec *storeMeta, bs blobstore.BlobStore, name string) error {
	s.dropSpill(ctx)

	s.dimension = rec.Dimension
	s.opts.chunkCapacity = rec.ChunkCapacity
	s.opts.maxActiveShards = rec.MaxActiveShards

	counts := make(map[string]int, len(rec.Shards))
	for _, sid := range rec.IDIndex {
		counts[sid]++
	}

	s.shards = make(map[string]*shardEntry, len(rec.Shards))
	s.order = make([]string, 0, len(rec.Shards))
	for _, sid := range rec.Shards {
		e := s.appendShard()
		e.Unload()
		e.SetSize(counts[sid])
		e.MarkClean()
		e.backing = &blobRef{store: bs, name: shardBlobName(name, sid)}
	}

	s.idIndex = make(map[string]string, len(rec.IDIndex))
	for id, sid := range rec.IDIndex {
		s.idIndex[id] = sid
	}
	s.currentShardID = rec.CurrentShardID

	eager := []string{s.currentShardID}
	// Only shards that own ids are worth reading up front.
	rest := slices.DeleteFunc(slices.Clone(s.order), func(sid string) bool {
		return sid == s.currentShardID || counts[sid] == 0
	})
	slices.SortStableFunc(rest, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(s.shards[a].seq, s.shards[b].seq)
	})
	eager = append(eager, rest[:min(len(rest), s.opts.maxActiveShards-1)]...)

	for _, sid := range eager {
		if _, err := s.activate(ctx, sid); err != nil {
			return err
		}
	}
	s.initialized = true
	s.refreshResidency()

	return nil
}

// Open creates a store from the state saved at path.
//
// Dimension, chunk capacity and the active shard bound come from the saved
// state; the remaining options apply as for New.
func Open(ctx context.Context, path string, optFns ...Option) (*Store, error) {
	return OpenFrom(ctx, blobstore.NewLocalStore(filepath.Dir(path)), filepath.Base(path), optFns...)
}

// OpenFrom is like Open but reads from bs under name.
func OpenFrom(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...Option) (*Store, error) {
	start := time.Now()

	rec, err := readMeta(ctx, bs, name)
	if err != nil {
		return nil, err
	}

	optFns = append(slices.Clone(optFns),
		WithChunkCapacity(rec.ChunkCapacity),
		WithMaxActiveShards(rec.MaxActiveShards),
	)

	s, err := New(rec.Dimension, optFns...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	err = s.restore(ctx, rec, resource.WrapStore(bs, s.rc), name)
	s.mu.Unlock()

	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.logger.InfoContext(ctx, "store opened", "location", name, "vectors", len(rec.IDIndex), "duration", time.Since(start))

	return s, nil
}
