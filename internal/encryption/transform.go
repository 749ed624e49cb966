package encryption

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

// encryptionHeaderName marks an encrypted record so the fetch path can tell
// it apart from a record nobody ever encrypted, per P7 (a fetched record
// without this header is returned byte-identical, no KMS lookup attempted).
const encryptionHeaderName = "edgekafka.io/encryption"

const encryptionVersion1 = 1

// Scheme selects, per topic, which KEK protects a batch and which record
// fields are swept into the encrypted parcel. The value is always sealed;
// EncryptHeaders additionally folds the record's headers into the parcel,
// leaving only the encryption marker header visible on the wire.
type Scheme struct {
	KekID          string
	EncryptHeaders bool
}

// IllegalHeaderEncryptionOnTombstone is returned when a scheme requests
// header encryption for a batch that contains at least one tombstone. A
// tombstone's headers must stay visible for compaction tooling, and since
// header encryption replaces the header list with just the marker, applying
// it to a tombstone would make the record indistinguishable from a live one
// at the broker. The whole batch is rejected rather than only the offending
// record, since a batch is committed to the log atomically.
var IllegalHeaderEncryptionOnTombstone = fmt.Errorf("encryption: cannot request header encryption on a batch containing a tombstone")

// TransformEngine applies the envelope-encryption transform to record
// batches: EncryptBatch runs on the way into a topic (Produce path),
// DecryptBatch on the way out (Fetch path). Both operate on
// kafka.RecordBatch so all non-record batch metadata (producer id, epoch,
// base offset, compression codec, transactional/control flags) passes
// through untouched.
type TransformEngine struct {
	keys       *KeyManager
	decryptors *DecryptorCache
	bufPool    *bufferPool
}

// NewTransformEngine builds an engine that leases DEKs from keys and
// resolves EDEKs through decryptors.
func NewTransformEngine(keys *KeyManager, decryptors *DecryptorCache) *TransformEngine {
	return &TransformEngine{
		keys:       keys,
		decryptors: decryptors,
		bufPool:    newBufferPool(),
	}
}

// DecryptFailure records a per-record integrity failure encountered during
// DecryptBatch: the AEAD tag didn't verify, so the record's plaintext
// cannot be trusted. Per §7 this never poisons the rest of the batch.
type DecryptFailure struct {
	Index int
	Err   error
}

// EncryptBatch rewrites every non-tombstone record in batch to carry a
// Wrapper-encoded ciphertext value in place of its plaintext value (and,
// under scheme.EncryptHeaders, its headers), leasing one DEK from
// scheme.KekID for the whole batch. A batch with zero non-tombstone records
// is returned unchanged with no KMS call (P6). Returns
// IllegalHeaderEncryptionOnTombstone immediately, before any lease or
// allocation, if scheme.EncryptHeaders is set and any record is a
// tombstone.
func (e *TransformEngine) EncryptBatch(ctx context.Context, scheme Scheme, batch kafka.RecordBatch) (kafka.RecordBatch, error) {
	if scheme.EncryptHeaders {
		for _, rec := range batch.Records {
			if rec.IsTombstone() {
				return kafka.RecordBatch{}, IllegalHeaderEncryptionOnTombstone
			}
		}
	}

	n := 0
	for _, rec := range batch.Records {
		if !rec.IsTombstone() {
			n++
		}
	}
	if n == 0 {
		return batch, nil
	}

	parcels := make([]Parcel, len(batch.Records))
	maxSize := 0
	for i, rec := range batch.Records {
		if rec.IsTombstone() {
			continue
		}
		p := Parcel{Value: rec.Value}
		if scheme.EncryptHeaders && len(rec.Headers) > 0 {
			p.HasHeaders = true
			p.HeaderBlob = encodeHeaders(rec.Headers)
		}
		parcels[i] = p
		if s := sizeOfParcel(p); s > maxSize {
			maxSize = s
		}
	}

	kc, err := e.keys.Lease(ctx, scheme.KekID, int64(n))
	if err != nil {
		return kafka.RecordBatch{}, err
	}

	scratch := e.bufPool.Get(maxSize)
	defer e.bufPool.Put(scratch)

	maxWrapperSize := wrapperSize(kc.EdekLen(), maxSize)
	wrapperScratch := e.bufPool.Get(maxWrapperSize)
	defer e.bufPool.Put(wrapperScratch)

	out := batch
	out.Records = make([]kafka.Record, len(batch.Records))
	for i, rec := range batch.Records {
		if rec.IsTombstone() {
			out.Records[i] = rec
			continue
		}

		plaintext := EncodeParcelInto(scratch, parcels[i])
		sealed, err := kc.EncryptInto(wrapperScratch, plaintext, randomNonce)
		if err != nil {
			return kafka.RecordBatch{}, fmt.Errorf("encryption: sealing record %d: %w", i, err)
		}

		newRec := rec
		newRec.Value = append([]byte(nil), sealed...)
		newRec.Headers = make([]kafka.RecordHeader, 0, 1+len(rec.Headers))
		newRec.Headers = append(newRec.Headers, kafka.RecordHeader{Key: encryptionHeaderName, Value: []byte{encryptionVersion1}})
		if !parcels[i].HasHeaders {
			newRec.Headers = append(newRec.Headers, rec.Headers...)
		}
		out.Records[i] = newRec
	}
	return out, nil
}

// DecryptBatch reverses EncryptBatch. A record without the encryption
// marker header passes through byte-identical (P7) — it was never written
// by this engine, or was already decrypted upstream. A record whose AEAD
// tag fails to verify is reported in the returned failures slice and left
// in the output batch with its ciphertext value replaced by a zero-length
// sentinel; every other record in the batch still decrypts normally.
func (e *TransformEngine) DecryptBatch(ctx context.Context, kekID string, batch kafka.RecordBatch) (kafka.RecordBatch, []DecryptFailure, error) {
	out := batch
	out.Records = make([]kafka.Record, len(batch.Records))
	var failures []DecryptFailure

	for i, rec := range batch.Records {
		markerIdx := -1
		for hi, h := range rec.Headers {
			if h.Key == encryptionHeaderName {
				markerIdx = hi
				break
			}
		}
		if markerIdx < 0 {
			out.Records[i] = rec
			continue
		}

		wrapper, err := DecodeWrapper(rec.Value)
		if err != nil {
			failures = append(failures, DecryptFailure{Index: i, Err: fmt.Errorf("malformed wrapper: %w", err)})
			out.Records[i] = sentinelRecord(rec)
			continue
		}

		dek, err := e.decryptors.Dek(ctx, kekID, wrapper.Edek)
		if err != nil {
			return kafka.RecordBatch{}, nil, fmt.Errorf("encryption: resolving dek for record %d: %w", i, err)
		}

		plain, err := OpenParcel(dek, wrapper)
		if err != nil {
			failures = append(failures, DecryptFailure{Index: i, Err: fmt.Errorf("integrity check failed: %w", err)})
			out.Records[i] = sentinelRecord(rec)
			continue
		}
		parcel, err := DecodeParcel(plain)
		if err != nil {
			failures = append(failures, DecryptFailure{Index: i, Err: fmt.Errorf("malformed parcel: %w", err)})
			out.Records[i] = sentinelRecord(rec)
			continue
		}

		newRec := rec
		newRec.Value = parcel.Value
		if parcel.HasHeaders {
			newRec.Headers = decodeHeaders(parcel.HeaderBlob)
		} else {
			newRec.Headers = append([]kafka.RecordHeader(nil), rec.Headers[markerIdx+1:]...)
		}
		out.Records[i] = newRec
	}
	return out, failures, nil
}

// sentinelRecord reports a decrypt integrity failure to the consumer as an
// empty value rather than surfacing raw ciphertext or aborting the fetch;
// the original offset/timestamp/key are preserved so the consumer's view of
// the partition's offsets stays consistent.
func sentinelRecord(rec kafka.Record) kafka.Record {
	out := rec
	out.Value = []byte{}
	out.Headers = nil
	return out
}

func randomNonce(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// encodeHeaders/decodeHeaders give the parcel format an opaque blob for a
// record's headers using the same varint-framed layout kafka.Record uses
// on the wire, so encrypted headers round-trip exactly.
func encodeHeaders(headers []kafka.RecordHeader) []byte {
	w := kafka.NewWriter()
	w.Varint(int64(len(headers)))
	for _, h := range headers {
		w.Varint(int64(len(h.Key)))
		w.Raw([]byte(h.Key))
		if h.Value == nil {
			w.Varint(-1)
		} else {
			w.Varint(int64(len(h.Value)))
			w.Raw(h.Value)
		}
	}
	return w.Bytes()
}

func decodeHeaders(blob []byte) []kafka.RecordHeader {
	r := kafka.NewReader(blob)
	n, err := r.Varint()
	if err != nil {
		return nil
	}
	headers := make([]kafka.RecordHeader, 0, n)
	for i := int64(0); i < n; i++ {
		var h kafka.RecordHeader
		kLen, err := r.Varint()
		if err != nil {
			return headers
		}
		kb, err := r.Bytes(int(kLen))
		if err != nil {
			return headers
		}
		h.Key = string(kb)
		vLen, err := r.Varint()
		if err != nil {
			return headers
		}
		if vLen >= 0 {
			if h.Value, err = r.Bytes(int(vLen)); err != nil {
				return headers
			}
		}
		headers = append(headers, h)
	}
	return headers
}
