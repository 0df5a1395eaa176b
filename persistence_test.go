package shardvec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardvec/blobstore"
	"github.com/hupe1980/shardvec/codec"
	vfs "github.com/hupe1980/shardvec/internal/fs"
	"github.com/hupe1980/shardvec/metadata"
	"github.com/hupe1980/shardvec/testutil"
)

type shardState struct {
	ID     string
	Size   int
	Active bool
	Dirty  bool
}

func shardStates(st Stats) []shardState {
	out := make([]shardState, len(st.Shards))
	for i, sh := range st.Shards {
		out[i] = shardState{ID: sh.ID, Size: sh.Size, Active: sh.Active, Dirty: sh.Dirty}
	}
	return out
}

// fillStore adds n random vectors named v0..v{n-1}, each tagged with its index.
func fillStore(t *testing.T, s *Store, n int) [][]float32 {
	t.Helper()

	vecs := testutil.NewRNG(99).UniformRangeVectors(n, s.Dimension())
	for i, v := range vecs {
		meta := metadata.Document{"n": metadata.Int(int64(i))}
		require.NoError(t, s.Add(context.Background(), fmt.Sprintf("v%d", i), v, meta))
	}
	return vecs
}

func requireSameResults(t *testing.T, want, got *Store, queries [][]float32, k int) {
	t.Helper()

	for _, q := range queries {
		wr, err := want.Search(context.Background(), q, k)
		require.NoError(t, err)
		gr, err := got.Search(context.Background(), q, k)
		require.NoError(t, err)

		require.Len(t, gr, len(wr))
		for i := range wr {
			assert.Equal(t, wr[i].ID, gr[i].ID)
			assert.InDelta(t, wr[i].Score, gr[i].Score, 1e-6)
			assert.True(t, wr[i].Metadata.Equal(gr[i].Metadata))
		}
	}
}

func TestPersistence_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	s := newTestStore(t, 8, WithChunkCapacity(5), WithMaxActiveShards(2))
	vecs := fillStore(t, s, 23)

	require.NoError(t, s.Save(ctx, path))

	assert.FileExists(t, path+".meta")
	for i := 1; i <= 5; i++ {
		assert.FileExists(t, filepath.Join(path+"_shards", fmt.Sprintf("shard_%d.bin", i)))
	}

	// The loaded state overrides the configuration of the target store.
	loaded := newTestStore(t, 3)
	require.NoError(t, loaded.Load(ctx, path))

	st := loaded.Stats()
	assert.Equal(t, 23, st.TotalVectors)
	assert.Equal(t, 8, st.Dimension)
	assert.Equal(t, 5, st.ChunkCapacity)
	assert.Equal(t, 2, st.MaxActiveShards)
	assert.Equal(t, 5, st.ShardCount)
	assert.Equal(t, "shard_5", st.CurrentShardID)
	assert.LessOrEqual(t, st.ActiveShardCount, 2)
	assert.True(t, st.Initialized)

	sizes := make([]int, len(st.Shards))
	for i, sh := range st.Shards {
		sizes[i] = sh.Size
	}
	assert.Equal(t, []int{5, 5, 5, 5, 3}, sizes)

	requireSameResults(t, s, loaded, vecs[:6], 4)

	rec, ok, err := loaded.Get(ctx, "v7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vecs[7], rec.Vector)
	assert.Equal(t, int64(7), rec.Metadata["n"].I64)

	// Routing continues where the saved store stopped.
	require.NoError(t, loaded.Add(ctx, "new", vecs[0], nil))
	assert.Equal(t, 24, loaded.Len())
	assert.Equal(t, 4, loaded.Stats().Shards[4].Size)
}

func TestPersistence_SaveKeepsState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 4, WithChunkCapacity(3), WithMaxActiveShards(1))
	fillStore(t, s, 10)

	before := shardStates(s.Stats())

	bs := blobstore.NewMemoryStore()
	require.NoError(t, s.SaveTo(ctx, bs, "snap"))

	assert.Equal(t, before, shardStates(s.Stats()))

	names, err := bs.List(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"snap.meta",
		"snap_shards/shard_1.bin",
		"snap_shards/shard_2.bin",
		"snap_shards/shard_3.bin",
		"snap_shards/shard_4.bin",
	}, names)
}

func TestPersistence_Open(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	s := newTestStore(t, 6, WithChunkCapacity(4), WithMaxActiveShards(3), WithCompression(CompressionZSTD))
	vecs := fillStore(t, s, 13)
	require.NoError(t, s.Save(ctx, path))

	opened, err := Open(ctx, path, WithCompression(CompressionNone))
	require.NoError(t, err)
	t.Cleanup(func() { _ = opened.Close() })

	assert.Equal(t, 13, opened.Len())
	assert.Equal(t, 6, opened.Dimension())
	assert.Equal(t, 4, opened.Stats().ChunkCapacity)
	requireSameResults(t, s, opened, vecs[:5], 3)

	_, err = Open(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrShardIO)
}

func TestPersistence_CodecByName(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t, 2, WithCodec(codec.JSON{}))
	require.NoError(t, s.Add(ctx, "a", []float32{1, 2}, nil))
	require.NoError(t, s.SaveTo(ctx, bs, "idx"))

	data, err := bs.Get(ctx, "idx.meta")
	require.NoError(t, err)
	require.Greater(t, len(data), len(metaMagic)+3)
	n := int(data[len(metaMagic)+2])
	assert.Equal(t, "json", string(data[len(metaMagic)+3:len(metaMagic)+3+n]))

	// The reader picks the codec from the file, not from its own options.
	loaded := newTestStore(t, 2, WithCodec(codec.GoJSON{}))
	require.NoError(t, loaded.LoadFrom(ctx, bs, "idx"))
	assert.True(t, loaded.Contains("a"))
}

func TestPersistence_FailedSaveLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newTestStore(t, 4, WithChunkCapacity(2), WithMaxActiveShards(2))
	fillStore(t, s, 5)
	before := s.Stats()

	ffs := vfs.NewFaultyFS(nil)
	ffs.AddRule("shard_2.bin", vfs.Fault{FailAfterBytes: -1, FailOnRename: true})
	bs := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))

	err := s.SaveTo(ctx, bs, "index")
	require.ErrorIs(t, err, ErrShardIO)
	assert.ErrorIs(t, err, vfs.ErrInjected)

	var ioErr *ShardIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "shard_2", ioErr.Shard)

	assert.NoFileExists(t, filepath.Join(dir, "index.meta"))

	after := s.Stats()
	assert.Equal(t, before.TotalVectors, after.TotalVectors)
	assert.Equal(t, before.CurrentShardID, after.CurrentShardID)
	assert.Equal(t, shardStates(before), shardStates(after))

	ffs.ClearRules()
	require.NoError(t, s.SaveTo(ctx, bs, "index"))
	assert.FileExists(t, filepath.Join(dir, "index.meta"))
}

func TestPersistence_FailedLoadUninitializes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	src := newTestStore(t, 4, WithChunkCapacity(2))
	fillStore(t, src, 5)
	require.NoError(t, src.Save(ctx, path))

	// The current shard is read eagerly on load.
	corruptLastByte(t, filepath.Join(path+"_shards", "shard_3.bin"))

	s := newTestStore(t, 4)
	require.NoError(t, s.Add(ctx, "keep", []float32{1, 1, 1, 1}, nil))

	err := s.Load(ctx, path)
	require.ErrorIs(t, err, ErrCorruptShard)
	assert.ErrorIs(t, err, ErrShardIO)

	st := s.Stats()
	assert.False(t, st.Initialized)
	assert.Zero(t, st.TotalVectors)

	assert.ErrorIs(t, s.Add(ctx, "x", []float32{1, 0, 0, 0}, nil), ErrUninitialized)
	_, err = s.Search(ctx, []float32{1, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrUninitialized)
	_, _, err = s.Get(ctx, "keep")
	assert.ErrorIs(t, err, ErrUninitialized)

	s.Clear()
	require.NoError(t, s.Add(ctx, "x", []float32{1, 0, 0, 0}, nil))
	assert.True(t, s.Stats().Initialized)
}

func TestPersistence_LazyShardCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	src := newTestStore(t, 2, WithChunkCapacity(2), WithMaxActiveShards(1))
	require.NoError(t, src.Add(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, src.Add(ctx, "b", []float32{0.9, 0.1}, nil))
	require.NoError(t, src.Add(ctx, "c", []float32{0, 1}, nil))
	require.NoError(t, src.Add(ctx, "d", []float32{0.1, 0.9}, nil))
	require.NoError(t, src.Add(ctx, "e", []float32{1, 1}, nil))
	require.NoError(t, src.Save(ctx, path))

	// Only the current shard is read on load; shard_1 is read on demand.
	corruptLastByte(t, filepath.Join(path+"_shards", "shard_1.bin"))

	s := newTestStore(t, 2)
	require.NoError(t, s.Load(ctx, path))
	assert.Equal(t, 5, s.Len())

	_, _, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCorruptShard)

	rec, ok, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, rec.Vector)

	// Search skips the unreadable shard.
	results, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.ElementsMatch(t, []string{"c", "d", "e"}, ids)
}

func TestPersistence_EagerLoadPicksMostReferencedShards(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src := newTestStore(t, 4, WithChunkCapacity(2), WithMaxActiveShards(2))
	fillStore(t, src, 7)
	found, err := src.Delete(ctx, "v2")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, src.SaveTo(ctx, bs, "index"))

	s := newTestStore(t, 4)
	require.NoError(t, s.LoadFrom(ctx, bs, "index"))

	// shard_1 and shard_3 both hold two ids; the tie goes to the older one.
	st := s.Stats()
	assert.Equal(t, "shard_4", st.CurrentShardID)
	assert.Equal(t, []shardState{
		{ID: "shard_1", Size: 2, Active: true},
		{ID: "shard_2", Size: 1},
		{ID: "shard_3", Size: 2},
		{ID: "shard_4", Size: 1, Active: true},
	}, shardStates(st))
}

func TestPersistence_EagerLoadSkipsEmptyShards(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src := newTestStore(t, 2, WithChunkCapacity(1), WithMaxActiveShards(3))
	require.NoError(t, src.Add(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, src.Add(ctx, "b", []float32{0, 1}, nil))
	_, err := src.Delete(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, src.SaveTo(ctx, bs, "index"))

	s := newTestStore(t, 2)
	require.NoError(t, s.LoadFrom(ctx, bs, "index"))

	// shard_2 lost its only id and stays on the blob store despite free slots.
	st := s.Stats()
	assert.Equal(t, "shard_3", st.CurrentShardID)
	assert.Equal(t, []shardState{
		{ID: "shard_1", Size: 1, Active: true},
		{ID: "shard_2"},
		{ID: "shard_3", Active: true},
	}, shardStates(st))

	rec, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
}

func TestPersistence_InvalidMeta(t *testing.T) {
	ctx := context.Background()

	valid := func() storeMeta {
		return storeMeta{
			Version:         1,
			Dimension:       2,
			ChunkCapacity:   2,
			MaxActiveShards: 1,
			Parallelism:     1,
			IDIndex:         map[string]string{"a": "shard_1"},
			CurrentShardID:  "shard_2",
			Shards:          []string{"shard_1", "shard_2"},
		}
	}

	tests := []struct {
		name   string
		mutate func(m *storeMeta)
	}{
		{"zero dimension", func(m *storeMeta) { m.Dimension = 0 }},
		{"zero capacity", func(m *storeMeta) { m.ChunkCapacity = 0 }},
		{"zero max active", func(m *storeMeta) { m.MaxActiveShards = 0 }},
		{"no shards", func(m *storeMeta) { m.Shards = nil }},
		{"non positional shard", func(m *storeMeta) { m.Shards = []string{"shard_1", "shard_7"} }},
		{"unknown current shard", func(m *storeMeta) { m.CurrentShardID = "shard_3" }},
		{"dangling id", func(m *storeMeta) { m.IDIndex["b"] = "shard_9" }},
	}

	require.NoError(t, func() error { m := valid(); return m.validate() }())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(&m)
			assert.ErrorIs(t, m.validate(), ErrCorruptMeta)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		bs := blobstore.NewMemoryStore()
		require.NoError(t, bs.Put(ctx, "idx.meta", []byte("not a meta file")))

		s := newTestStore(t, 2)
		err := s.LoadFrom(ctx, bs, "idx")
		assert.ErrorIs(t, err, ErrCorruptMeta)
		assert.False(t, s.Stats().Initialized)
	})

	t.Run("unknown codec", func(t *testing.T) {
		data := append([]byte(metaMagic), 1, 0, 3, 'x', 'm', 'l', '{', '}')
		_, err := decodeMeta(data)
		assert.ErrorIs(t, err, ErrCorruptMeta)
	})

	t.Run("newer version", func(t *testing.T) {
		data := append([]byte(metaMagic), 2, 0, 4, 'j', 's', 'o', 'n', '{', '}')
		_, err := decodeMeta(data)
		assert.ErrorIs(t, err, ErrCorruptMeta)
	})
}

func corruptLastByte(t *testing.T, name string) {
	t.Helper()

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(name, data, 0o644))
}
