// Package kafka implements the Kafka wire-protocol frame codec: reading and
// writing length-prefixed request/response frames, and the primitive
// encodings (ints, strings, varints, tagged fields) those frames are built
// from.
package kafka

import (
	"encoding/binary"
	"fmt"
)

// Reader reads Kafka wire protocol primitives from a byte slice in order.
// It never copies the backing array; returned byte slices alias buf, while
// strings are copied out of it.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return fmt.Errorf("kafka: short read at offset %d, need %d bytes, have %d", r.pos, n, len(r.buf)-r.pos)
	}
	return nil
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Int8 reads a single signed byte.
func (r *Reader) Int8() (int8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := int8(r.buf[r.pos])
	r.pos++
	return v, nil
}

// Int16 reads a big-endian signed 16-bit integer.
func (r *Reader) Int16() (int16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return v, nil
}

// Int32 reads a big-endian signed 32-bit integer.
func (r *Reader) Int32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

// Int64 reads a big-endian signed 64-bit integer.
func (r *Reader) Int64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// String reads a classic Kafka string: int16 length prefix, -1 reserved for null.
func (r *Reader) String() (string, error) {
	n, err := r.Int16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("kafka: unexpected null string")
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NullableString reads a classic nullable Kafka string (-1 length = nil).
func (r *Reader) NullableString() (*string, error) {
	n, err := r.Int16()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// Uvarint reads a Kafka-style unsigned LEB128 varint.
func (r *Reader) Uvarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if r.pos >= len(r.buf) {
			return 0, fmt.Errorf("kafka: short read in uvarint")
		}
		b := r.buf[r.pos]
		r.pos++
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("kafka: uvarint overflow")
		}
	}
}

// Varint reads a Kafka-style zigzag-encoded signed varint.
func (r *Reader) Varint() (int64, error) {
	u, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// CompactString reads a flexible-version compact string: uvarint(len+1), 0 reserved for null.
func (r *Reader) CompactString() (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("kafka: unexpected null compact string")
	}
	b, err := r.Bytes(int(n) - 1)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CompactNullableString reads a flexible-version compact nullable string (0 = nil).
func (r *Reader) CompactNullableString() (*string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b, err := r.Bytes(int(n) - 1)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// CompactBytes reads a flexible-version compact byte array: uvarint(len+1).
func (r *Reader) CompactBytes() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.Bytes(int(n) - 1)
}

// TagBuffer reads a Kafka tagged-field section (uvarint count, then per tag:
// id varint + size varint + raw payload) and returns its raw encoding
// unparsed, since the codec only needs to reproduce it on re-encode.
func (r *Reader) TagBuffer() ([]byte, error) {
	start := r.pos
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := r.Uvarint(); err != nil {
			return nil, err
		}
		size, err := r.Uvarint()
		if err != nil {
			return nil, err
		}
		if _, err := r.Bytes(int(size)); err != nil {
			return nil, err
		}
	}
	return r.buf[start:r.pos], nil
}

// Remaining returns all unread bytes.
func (r *Reader) Remaining() []byte {
	if r.pos >= len(r.buf) {
		return nil
	}
	return r.buf[r.pos:]
}

// Writer builds Kafka wire protocol byte sequences.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// NewWriterSize returns an empty Writer with its backing array pre-sized.
func NewWriterSize(n int) *Writer { return &Writer{buf: make([]byte, 0, n)} }

func (w *Writer) Int8(v int8) { w.buf = append(w.buf, byte(v)) }

func (w *Writer) Int16(v int16) { w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v)) }

func (w *Writer) Int32(v int32) { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }

func (w *Writer) Int64(v int64) { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) String(s string) {
	w.Int16(int16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) NullableString(s *string) {
	if s == nil {
		w.Int16(-1)
		return
	}
	w.String(*s)
}

func (w *Writer) Uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *Writer) Varint(v int64) {
	w.Uvarint(uint64(v<<1) ^ uint64(v>>63))
}

func (w *Writer) CompactString(s string) {
	w.Uvarint(uint64(len(s)) + 1)
	w.buf = append(w.buf, s...)
}

func (w *Writer) CompactNullableString(s *string) {
	if s == nil {
		w.Uvarint(0)
		return
	}
	w.CompactString(*s)
}

func (w *Writer) CompactBytes(b []byte) {
	if b == nil {
		w.Uvarint(0)
		return
	}
	w.Uvarint(uint64(len(b)) + 1)
	w.buf = append(w.buf, b...)
}

// EmptyTagBuffer writes a tagged-field section with zero tags — the common
// case when re-encoding a struct we did not add tagged fields to.
func (w *Writer) EmptyTagBuffer() { w.Uvarint(0) }

func (w *Writer) Bytes() []byte { return w.buf }
