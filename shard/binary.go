package shard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/shardvec/internal/compress"
	"github.com/hupe1980/shardvec/internal/hash"
	"github.com/hupe1980/shardvec/metadata"
)

// File layout:
//
//	magic "SVSHRD" | version u16 | compression u8 | crc32c u32 | payload
//
// The checksum covers the uncompressed payload:
//
//	uvarint dimension | uvarint size | uvarint count |
//	count × (uvarint idlen | id | dimension × f32 | uvarint metalen | metadata)
const (
	// FormatVersion is the current shard file version.
	FormatVersion uint16 = 1

	magic      = "SVSHRD"
	headerSize = len(magic) + 2 + 1 + 4
)

var (
	// ErrCorrupt is returned when shard data fails validation.
	ErrCorrupt = errors.New("shard: corrupt data")
	// ErrUnsupportedVersion is returned for shard files written by a newer format.
	ErrUnsupportedVersion = errors.New("shard: unsupported format version")
	// ErrInactive is returned when encoding a shard whose data is not resident.
	ErrInactive = errors.New("shard: not active")
)

// MarshalBinary implements encoding.BinaryMarshaler without compression.
func (s *Shard) MarshalBinary() ([]byte, error) {
	return s.Encode(compress.None)
}

// Encode serializes the resident entries, compressing the payload with t.
func (s *Shard) Encode(t compress.Type) ([]byte, error) {
	payload, err := s.appendPayload(nil)
	if err != nil {
		return nil, err
	}

	body, err := compress.Compress(payload, t)
	if err != nil {
		return nil, fmt.Errorf("shard %s: compress: %w", s.id, err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, magic)
	binary.LittleEndian.PutUint16(out[6:], FormatVersion)
	out[8] = byte(t)
	binary.LittleEndian.PutUint32(out[9:], hash.CRC32C(payload))
	return append(out, body...), nil
}

func (s *Shard) appendPayload(buf []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active && s.size > 0 {
		return nil, fmt.Errorf("shard %s: %w", s.id, ErrInactive)
	}

	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	buf = binary.AppendUvarint(buf, uint64(s.dimension))
	buf = binary.AppendUvarint(buf, uint64(s.size))
	buf = binary.AppendUvarint(buf, uint64(len(ids)))

	var docBuf []byte
	for _, id := range ids {
		buf = binary.AppendUvarint(buf, uint64(len(id)))
		buf = append(buf, id...)
		for _, f := range s.vectors[id] {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}

		docBuf = docBuf[:0]
		if doc := s.meta[id]; len(doc) > 0 {
			var err error
			docBuf, err = metadata.AppendDocument(docBuf, doc)
			if err != nil {
				return nil, fmt.Errorf("shard %s: encode metadata of %q: %w", s.id, id, err)
			}
		}
		buf = binary.AppendUvarint(buf, uint64(len(docBuf)))
		buf = append(buf, docBuf...)
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// On success the shard becomes active and clean. On failure it is unchanged.
func (s *Shard) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[6:]); v > FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	t := compress.Type(data[8])
	want := binary.LittleEndian.Uint32(data[9:])

	payload, err := compress.Decompress(data[headerSize:], t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !hash.VerifyCRC32C(payload, want) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	dim, vectors, meta, err := parsePayload(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && dim != 0 && dim != s.dimension {
		return fmt.Errorf("%w: dimension %d, want %d", ErrCorrupt, dim, s.dimension)
	}
	if dim != 0 {
		s.dimension = dim
	}

	var bytes int64
	for id, vec := range vectors {
		bytes += entryBytes(id, vec, meta[id])
	}

	s.vectors = vectors
	s.meta = meta
	s.size = len(vectors)
	s.bytes = bytes
	s.active = true
	s.dirty = false
	s.Touch()

	return nil
}

func parsePayload(data []byte) (int, map[string][]float32, map[string]metadata.Document, error) {
	r := reader{data: data}

	dim := r.uvarint()
	size := r.uvarint()
	count := r.uvarint()
	if r.err != nil {
		return 0, nil, nil, r.err
	}
	if size != count {
		return 0, nil, nil, fmt.Errorf("%w: recorded size %d, found %d entries", ErrCorrupt, size, count)
	}
	if count > 0 && dim == 0 {
		return 0, nil, nil, fmt.Errorf("%w: entries without dimension", ErrCorrupt)
	}
	// Every entry needs at least an id length, one vector and a metadata length.
	if dim > uint64(len(data)) || count > uint64(len(data))/(dim*4+2+1) {
		return 0, nil, nil, fmt.Errorf("%w: %d entries of dimension %d exceed payload", ErrCorrupt, count, dim)
	}

	vectors := make(map[string][]float32, count)
	meta := make(map[string]metadata.Document)

	for range count {
		id := string(r.bytes(r.uvarint()))
		raw := r.bytes(dim * 4)
		docRaw := r.bytes(r.uvarint())
		if r.err != nil {
			return 0, nil, nil, r.err
		}
		if id == "" {
			return 0, nil, nil, fmt.Errorf("%w: empty id", ErrCorrupt)
		}
		if _, dup := vectors[id]; dup {
			return 0, nil, nil, fmt.Errorf("%w: duplicate id %q", ErrCorrupt, id)
		}

		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		vectors[id] = vec

		if len(docRaw) > 0 {
			var doc metadata.Document
			if err := doc.UnmarshalBinary(docRaw); err != nil {
				return 0, nil, nil, fmt.Errorf("%w: metadata of %q: %v", ErrCorrupt, id, err)
			}
			meta[id] = doc
		}
	}

	if r.remaining() != 0 {
		return 0, nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.remaining())
	}

	return int(dim), vectors, meta, nil
}

type reader struct {
	data []byte
	err  error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		r.err = fmt.Errorf("%w: invalid varint", ErrCorrupt)
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *reader) bytes(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.data)) {
		r.err = fmt.Errorf("%w: unexpected end of payload", ErrCorrupt)
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) remaining() int { return len(r.data) }
