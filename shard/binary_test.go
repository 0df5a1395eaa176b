package shard

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardvec/internal/compress"
	"github.com/hupe1980/shardvec/internal/hash"
	"github.com/hupe1980/shardvec/metadata"
	"github.com/hupe1980/shardvec/metric"
	"github.com/hupe1980/shardvec/testutil"
)

func filledShard(t *testing.T, n, dim int) *Shard {
	t.Helper()

	rng := testutil.NewRNG(4711)
	s := New("shard_1", dim)
	for i, vec := range rng.UnitVectors(n, dim) {
		meta := metadata.Document{
			"i":    metadata.Int(int64(i)),
			"tags": metadata.Array([]metadata.Value{metadata.String("a"), metadata.Bool(i%2 == 0)}),
		}
		if i%3 == 0 {
			meta = nil
		}
		require.True(t, s.Add(string(rune('a'+i%26))+string(rune('0'+i/26)), vec, meta))
	}
	return s
}

func TestShard_BinaryRoundTrip(t *testing.T) {
	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			src := filledShard(t, 40, 16)

			data, err := src.Encode(ct)
			require.NoError(t, err)
			assert.Equal(t, uint8(ct), data[8])

			dst := New("shard_1", 0)
			dst.Unload()
			require.NoError(t, dst.UnmarshalBinary(data))

			assert.True(t, dst.Active())
			assert.False(t, dst.Dirty())
			assert.Equal(t, src.Size(), dst.Size())
			assert.Equal(t, 16, dst.Dimension())
			assert.Equal(t, src.ResidentBytes(), dst.ResidentBytes())

			for _, id := range src.IDs() {
				wantVec, wantMeta, _ := src.Get(id)
				gotVec, gotMeta, ok := dst.Get(id)
				require.True(t, ok, id)
				assert.Equal(t, wantVec, gotVec)
				assert.True(t, wantMeta.Equal(gotMeta), id)
			}

			query := testutil.NewRNG(1).UnitVector(16)
			assert.Equal(t,
				src.Search(context.Background(), query, 5, metric.CosineSimilarity),
				dst.Search(context.Background(), query, 5, metric.CosineSimilarity))
		})
	}
}

func TestShard_BinaryDeterministic(t *testing.T) {
	a, err := filledShard(t, 20, 4).MarshalBinary()
	require.NoError(t, err)
	b, err := filledShard(t, 20, 4).MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestShard_BinaryEmpty(t *testing.T) {
	data, err := New("shard_1", 0).MarshalBinary()
	require.NoError(t, err)

	dst := New("shard_1", 0)
	require.NoError(t, dst.UnmarshalBinary(data))
	assert.True(t, dst.IsEmpty())
	assert.Equal(t, 0, dst.Dimension())
}

func TestShard_UnmarshalRejectsCorruption(t *testing.T) {
	data, err := filledShard(t, 5, 4).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"short header", func(b []byte) []byte { return b[:5] }},
		{"flipped payload byte", func(b []byte) []byte { b[len(b)-3] ^= 0xff; return b }},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-4] }},
		{"unknown compression", func(b []byte) []byte { b[8] = 9; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupted := tt.mutate(append([]byte(nil), data...))

			dst := New("shard_1", 0)
			dst.Add("keep", []float32{1, 1, 1, 1}, nil)

			err := dst.UnmarshalBinary(corrupted)
			require.ErrorIs(t, err, ErrCorrupt)

			// A failed decode leaves the shard untouched.
			assert.Equal(t, 1, dst.Size())
			assert.True(t, dst.Contains("keep"))
		})
	}
}

func TestShard_UnmarshalRejectsSizeMismatch(t *testing.T) {
	var payload []byte
	payload = binary.AppendUvarint(payload, 1) // dimension
	payload = binary.AppendUvarint(payload, 2) // size
	payload = binary.AppendUvarint(payload, 1) // count
	payload = binary.AppendUvarint(payload, 1)
	payload = append(payload, 'a')
	payload = binary.LittleEndian.AppendUint32(payload, 0)
	payload = binary.AppendUvarint(payload, 0)

	data := append([]byte(magic), 0, 0, 0, 0, 0, 0, 0)
	binary.LittleEndian.PutUint16(data[6:], FormatVersion)
	binary.LittleEndian.PutUint32(data[9:], hash.CRC32C(payload))
	data = append(data, payload...)

	err := New("shard_1", 0).UnmarshalBinary(data)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestShard_UnmarshalRejectsNewerVersion(t *testing.T) {
	data, err := New("shard_1", 0).MarshalBinary()
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(data[6:], FormatVersion+1)

	assert.ErrorIs(t, New("shard_1", 0).UnmarshalBinary(data), ErrUnsupportedVersion)
}

func TestShard_UnmarshalRejectsDimensionChange(t *testing.T) {
	data, err := filledShard(t, 3, 4).MarshalBinary()
	require.NoError(t, err)

	assert.ErrorIs(t, New("shard_1", 8).UnmarshalBinary(data), ErrCorrupt)
}
