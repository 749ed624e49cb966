package kafka

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// RecordHeader is one header entry on a record: a name and an opaque value.
// A nil Value (as opposed to an empty non-nil slice) represents a Kafka
// "null" header value.
type RecordHeader struct {
	Key   string
	Value []byte
}

// Record is one decoded record within a RecordBatch. Offset/Timestamp are
// reconstructed from the batch's base values plus this record's deltas.
type Record struct {
	Attributes int8
	Offset     int64
	Timestamp  int64
	Key        []byte // nil = null key
	Value      []byte // nil = null value (tombstone)
	Headers    []RecordHeader
}

// IsTombstone reports whether this record's value is null, i.e. a Kafka
// compaction tombstone.
func (r Record) IsTombstone() bool { return r.Value == nil }

// RecordBatch is one decoded Kafka record batch (magic byte 2, KIP-98). All
// batch-level metadata the record-transform engine must preserve untouched
// is kept here; only Records is ever rewritten.
type RecordBatch struct {
	BaseOffset           int64
	PartitionLeaderEpoch int32
	Magic                int8
	Attributes           int16
	LastOffsetDelta      int32
	FirstTimestamp       int64
	MaxTimestamp         int64
	ProducerID           int64
	ProducerEpoch        int16
	BaseSequence         int32
	Records              []Record
}

func (b RecordBatch) compression() CompressionCodec {
	return CompressionCodec(b.Attributes & 0x7)
}

func (b RecordBatch) timestampType() int16 { return (b.Attributes >> 3) & 0x1 }

func (b RecordBatch) isTransactional() bool { return (b.Attributes>>4)&0x1 == 1 }

func (b RecordBatch) isControl() bool { return (b.Attributes>>5)&0x1 == 1 }

// DecodeRecordBatches parses every record batch in a Produce/Fetch records
// blob. A blob may contain more than one batch back-to-back (Kafka allows
// concatenated batches in one partition's records section); each is decoded
// independently. Batches using an unsupported compression codec (see
// compress.go) are decoded with Records == nil and Opaque holding the
// original bytes, so callers can detect and pass them through.
func DecodeRecordBatches(data []byte) ([]DecodedBatch, error) {
	var out []DecodedBatch
	for len(data) > 0 {
		if len(data) < 12 {
			return nil, fmt.Errorf("kafka: truncated record batch header")
		}
		batchLength := int32(binary.BigEndian.Uint32(data[8:12]))
		total := 12 + int(batchLength)
		if total > len(data) || batchLength < 0 {
			return nil, fmt.Errorf("kafka: record batch length %d exceeds remaining %d", batchLength, len(data)-12)
		}
		raw := data[:total]
		db, err := decodeOneBatch(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, db)
		data = data[total:]
	}
	return out, nil
}

// DecodedBatch pairs a parsed RecordBatch with enough bookkeeping to
// re-encode it, including the opaque fallback path for batches this codec
// chose not to fully decompress.
type DecodedBatch struct {
	Batch       RecordBatch
	Unsupported bool   // true: Batch.Records is empty, use Opaque verbatim
	Opaque      []byte // original bytes, valid when Unsupported
}

func decodeOneBatch(raw []byte) (DecodedBatch, error) {
	r := NewReader(raw)
	var b RecordBatch

	var err error
	if b.BaseOffset, err = r.Int64(); err != nil {
		return DecodedBatch{}, err
	}
	if _, err = r.Int32(); err != nil { // batchLength, already used to slice raw
		return DecodedBatch{}, err
	}
	if b.PartitionLeaderEpoch, err = r.Int32(); err != nil {
		return DecodedBatch{}, err
	}
	magic, err := r.Int8()
	if err != nil {
		return DecodedBatch{}, err
	}
	b.Magic = magic
	if magic != 2 {
		// Only magic=2 (current) batches carry headers/tombstones the way
		// this proxy's parcel format understands; older magic values are
		// relayed untouched.
		return DecodedBatch{Unsupported: true, Opaque: raw}, nil
	}
	if _, err = r.Int32(); err != nil { // crc
		return DecodedBatch{}, err
	}
	if b.Attributes, err = r.Int16(); err != nil {
		return DecodedBatch{}, err
	}
	if b.LastOffsetDelta, err = r.Int32(); err != nil {
		return DecodedBatch{}, err
	}
	if b.FirstTimestamp, err = r.Int64(); err != nil {
		return DecodedBatch{}, err
	}
	if b.MaxTimestamp, err = r.Int64(); err != nil {
		return DecodedBatch{}, err
	}
	if b.ProducerID, err = r.Int64(); err != nil {
		return DecodedBatch{}, err
	}
	if b.ProducerEpoch, err = r.Int16(); err != nil {
		return DecodedBatch{}, err
	}
	if b.BaseSequence, err = r.Int32(); err != nil {
		return DecodedBatch{}, err
	}
	count, err := r.Int32()
	if err != nil {
		return DecodedBatch{}, err
	}

	recordsSection := r.Remaining()
	codec := b.compression()
	if codec == CompressionSnappy {
		return DecodedBatch{Unsupported: true, Opaque: raw}, nil
	}
	plain, err := decompress(codec, recordsSection)
	if err != nil {
		return DecodedBatch{}, err
	}

	rr := NewReader(plain)
	b.Records = make([]Record, 0, count)
	for i := int32(0); i < count; i++ {
		rec, offDelta, tsDelta, err := decodeRecord(rr)
		if err != nil {
			return DecodedBatch{}, fmt.Errorf("record %d: %w", i, err)
		}
		rec.Offset = b.BaseOffset + int64(offDelta)
		rec.Timestamp = b.FirstTimestamp + tsDelta
		b.Records = append(b.Records, rec)
	}
	return DecodedBatch{Batch: b}, nil
}

// decodeRecord parses one record's varint-framed encoding, returning the
// record plus its raw offset/timestamp deltas so the caller can resolve
// them against the batch's base values.
func decodeRecord(r *Reader) (rec Record, offsetDelta int32, timestampDelta int64, err error) {
	length, err := r.Varint()
	if err != nil {
		return rec, 0, 0, err
	}
	if length < 0 {
		return rec, 0, 0, fmt.Errorf("negative record length")
	}
	body, err := r.Bytes(int(length))
	if err != nil {
		return rec, 0, 0, err
	}
	br := NewReader(body)

	attrs, err := br.Int8()
	if err != nil {
		return rec, 0, 0, err
	}
	rec.Attributes = attrs

	if timestampDelta, err = br.Varint(); err != nil {
		return rec, 0, 0, err
	}

	var offDelta64 int64
	if offDelta64, err = br.Varint(); err != nil {
		return rec, 0, 0, err
	}
	offsetDelta = int32(offDelta64)

	keyLen, err := br.Varint()
	if err != nil {
		return rec, 0, 0, err
	}
	if keyLen >= 0 {
		if rec.Key, err = br.Bytes(int(keyLen)); err != nil {
			return rec, 0, 0, err
		}
	}

	valLen, err := br.Varint()
	if err != nil {
		return rec, 0, 0, err
	}
	if valLen >= 0 {
		if rec.Value, err = br.Bytes(int(valLen)); err != nil {
			return rec, 0, 0, err
		}
	}

	hdrCount, err := br.Varint()
	if err != nil {
		return rec, 0, 0, err
	}
	rec.Headers = make([]RecordHeader, 0, hdrCount)
	for i := int64(0); i < hdrCount; i++ {
		var h RecordHeader
		kLen, err := br.Varint()
		if err != nil {
			return rec, 0, 0, err
		}
		kb, err := br.Bytes(int(kLen))
		if err != nil {
			return rec, 0, 0, err
		}
		h.Key = string(kb)

		vLen, err := br.Varint()
		if err != nil {
			return rec, 0, 0, err
		}
		if vLen >= 0 {
			if h.Value, err = br.Bytes(int(vLen)); err != nil {
				return rec, 0, 0, err
			}
		}
		rec.Headers = append(rec.Headers, h)
	}
	return rec, offsetDelta, timestampDelta, nil
}

// EncodeRecordBatches re-serializes a list of decoded batches (in the order
// DecodeRecordBatches produced them) back into one records blob.
func EncodeRecordBatches(batches []DecodedBatch) ([]byte, error) {
	w := NewWriter()
	for _, db := range batches {
		if db.Unsupported {
			w.Raw(db.Opaque)
			continue
		}
		enc, err := encodeOneBatch(db.Batch)
		if err != nil {
			return nil, err
		}
		w.Raw(enc)
	}
	return w.Bytes(), nil
}

func encodeOneBatch(b RecordBatch) ([]byte, error) {
	recW := NewWriter()
	for _, rec := range b.Records {
		encodeRecord(recW, b.BaseOffset, b.FirstTimestamp, rec)
	}
	plain := recW.Bytes()

	codec := b.compression()
	if codec == CompressionSnappy {
		return nil, errUnsupportedSnappy
	}
	packed, err := compress(codec, plain)
	if err != nil {
		return nil, err
	}

	// Build everything from partitionLeaderEpoch onward, then compute CRC
	// over it, then prepend baseOffset+batchLength.
	body := NewWriter()
	body.Int32(b.PartitionLeaderEpoch)
	body.Int8(b.Magic)
	crcPlaceholderPos := len(body.Bytes())
	body.Int32(0) // crc placeholder
	afterCRCPos := len(body.Bytes())
	body.Int16(b.Attributes)
	body.Int32(b.LastOffsetDelta)
	body.Int64(b.FirstTimestamp)
	body.Int64(b.MaxTimestamp)
	body.Int64(b.ProducerID)
	body.Int16(b.ProducerEpoch)
	body.Int32(b.BaseSequence)
	body.Int32(int32(len(b.Records)))
	body.Raw(packed)

	buf := body.Bytes()
	crc := crc32.Checksum(buf[afterCRCPos:], crc32.MakeTable(crc32.Castagnoli))
	binary.BigEndian.PutUint32(buf[crcPlaceholderPos:crcPlaceholderPos+4], crc)

	out := NewWriter()
	out.Int64(b.BaseOffset)
	out.Int32(int32(len(buf)))
	out.Raw(buf)
	return out.Bytes(), nil
}

func encodeRecord(w *Writer, baseOffset, firstTimestamp int64, rec Record) {
	body := NewWriter()
	body.Int8(rec.Attributes)
	body.Varint(rec.Timestamp - firstTimestamp)
	body.Varint(rec.Offset - baseOffset)

	if rec.Key == nil {
		body.Varint(-1)
	} else {
		body.Varint(int64(len(rec.Key)))
		body.Raw(rec.Key)
	}

	if rec.Value == nil {
		body.Varint(-1)
	} else {
		body.Varint(int64(len(rec.Value)))
		body.Raw(rec.Value)
	}

	body.Varint(int64(len(rec.Headers)))
	for _, h := range rec.Headers {
		body.Varint(int64(len(h.Key)))
		body.Raw([]byte(h.Key))
		if h.Value == nil {
			body.Varint(-1)
		} else {
			body.Varint(int64(len(h.Value)))
			body.Raw(h.Value)
		}
	}

	encoded := body.Bytes()
	w.Varint(int64(len(encoded)))
	w.Raw(encoded)
}
