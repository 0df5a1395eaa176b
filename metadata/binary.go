package metadata

import (
	"encoding/binary"
	"errors"
	"math"
	"unique"
)

// maxNestingDepth bounds recursion when decoding untrusted input.
const maxNestingDepth = 64

var (
	// ErrShortBuffer is returned when encoded metadata ends early.
	ErrShortBuffer = errors.New("metadata: short buffer")
	// ErrUnknownKind is returned for an unknown value tag.
	ErrUnknownKind = errors.New("metadata: unknown kind")
	// ErrTooDeep is returned when nested values exceed the supported depth.
	ErrTooDeep = errors.New("metadata: nesting too deep")
)

// MarshalBinary implements encoding.BinaryMarshaler.
//
// Keys are written in sorted order, so equal documents encode to equal bytes.
func (d Document) MarshalBinary() ([]byte, error) {
	return AppendDocument(make([]byte, 0, 4+len(d)*16), d)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *Document) UnmarshalBinary(data []byte) error {
	doc, rest, err := parseDocument(data, 0)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.New("metadata: trailing bytes")
	}
	*d = doc
	return nil
}

// AppendDocument appends the binary encoding of d to buf.
func AppendDocument(buf []byte, d Document) ([]byte, error) {
	buf = binary.AppendUvarint(buf, uint64(len(d)))

	for _, k := range d.Keys() {
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)

		var err error
		buf, err = appendValue(buf, d[k])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	buf = append(buf, byte(v.Kind))

	switch v.Kind {
	case KindNull:
		// No payload
	case KindInt:
		buf = binary.AppendVarint(buf, v.I64)
	case KindFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case KindString:
		s := v.s.Value()
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	case KindBool:
		if v.B {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindArray:
		buf = binary.AppendUvarint(buf, uint64(len(v.A)))
		for _, item := range v.A {
			var err error
			buf, err = appendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
	case KindMap:
		return AppendDocument(buf, v.M)
	default:
		return nil, ErrUnknownKind
	}
	return buf, nil
}

func parseDocument(data []byte, depth int) (Document, []byte, error) {
	if depth > maxNestingDepth {
		return nil, nil, ErrTooDeep
	}
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, errors.New("metadata: invalid document length")
	}
	data = data[n:]
	// Every entry needs at least a key length byte and a kind byte.
	if count > uint64(len(data))/2 {
		return nil, nil, ErrShortBuffer
	}

	doc := make(Document, count)
	for range count {
		kLen, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, nil, errors.New("metadata: invalid key length")
		}
		data = data[n:]
		if uint64(len(data)) < kLen {
			return nil, nil, ErrShortBuffer
		}
		key := string(data[:kLen])
		data = data[kLen:]

		val, rest, err := parseValue(data, depth)
		if err != nil {
			return nil, nil, err
		}
		doc[key] = val
		data = rest
	}
	return doc, data, nil
}

func parseValue(data []byte, depth int) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, ErrShortBuffer
	}
	v := Value{Kind: Kind(data[0])}
	data = data[1:]

	switch v.Kind {
	case KindNull:
		// No payload
	case KindInt:
		i, n := binary.Varint(data)
		if n <= 0 {
			return v, nil, errors.New("metadata: invalid int value")
		}
		v.I64 = i
		data = data[n:]
	case KindFloat:
		if len(data) < 8 {
			return v, nil, ErrShortBuffer
		}
		v.F64 = math.Float64frombits(binary.LittleEndian.Uint64(data))
		data = data[8:]
	case KindString:
		sLen, n := binary.Uvarint(data)
		if n <= 0 {
			return v, nil, errors.New("metadata: invalid string length")
		}
		data = data[n:]
		if uint64(len(data)) < sLen {
			return v, nil, ErrShortBuffer
		}
		v.s = unique.Make(string(data[:sLen]))
		data = data[sLen:]
	case KindBool:
		if len(data) == 0 {
			return v, nil, ErrShortBuffer
		}
		v.B = data[0] != 0
		data = data[1:]
	case KindArray:
		if depth >= maxNestingDepth {
			return v, nil, ErrTooDeep
		}
		aLen, n := binary.Uvarint(data)
		if n <= 0 {
			return v, nil, errors.New("metadata: invalid array length")
		}
		data = data[n:]
		if aLen > uint64(len(data)) {
			return v, nil, ErrShortBuffer
		}
		v.A = make([]Value, aLen)
		for i := range v.A {
			item, rest, err := parseValue(data, depth+1)
			if err != nil {
				return v, nil, err
			}
			v.A[i] = item
			data = rest
		}
	case KindMap:
		doc, rest, err := parseDocument(data, depth+1)
		if err != nil {
			return v, nil, err
		}
		v.M = doc
		data = rest
	default:
		return v, nil, ErrUnknownKind
	}
	return v, data, nil
}
