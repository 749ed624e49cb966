package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// AadCode and CipherCode identify, in-band, the additional-authenticated-
// data scheme and cipher a Wrapper was sealed with, so a future version can
// add a new AAD binding (e.g. topic+partition) without breaking consumers
// still running an older proxy build. V1 only ever writes AadNone and
// CipherAes256Gcm; the codes exist so the decrypt path can refuse anything
// it doesn't recognize instead of guessing.
type AadCode uint8

const (
	AadNone AadCode = 0
)

type CipherCode uint8

const (
	CipherAes256Gcm CipherCode = 0
)

const gcmNonceSize = 12
const gcmTagSize = 16

// Wrapper is the in-band envelope written in place of a record's original
// value: enough to recover the DEK (via the EDEK and the KMS) and then
// recover the plaintext parcel (via AES-GCM with that DEK). Layout:
// uvarint(edek_len) | edek | aad_code(1) | cipher_code(1) | iv(12) |
// ciphertext+tag.
type Wrapper struct {
	Edek       []byte
	AadCode    AadCode
	CipherCode CipherCode
	IV         []byte
	Ciphertext []byte // includes the trailing GCM auth tag
}

// Encode serializes w to its wire form.
func (w Wrapper) Encode() []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(w.Edek)))

	buf := make([]byte, 0, n+len(w.Edek)+2+len(w.IV)+len(w.Ciphertext))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, w.Edek...)
	buf = append(buf, byte(w.AadCode), byte(w.CipherCode))
	buf = append(buf, w.IV...)
	buf = append(buf, w.Ciphertext...)
	return buf
}

// DecodeWrapper parses a Wrapper from its wire form without touching the
// KMS or attempting decryption.
func DecodeWrapper(data []byte) (Wrapper, error) {
	var w Wrapper
	edekLen, n := binary.Uvarint(data)
	if n <= 0 {
		return w, fmt.Errorf("encryption: malformed wrapper edek length")
	}
	data = data[n:]
	if uint64(len(data)) < edekLen {
		return w, fmt.Errorf("encryption: short wrapper, need %d edek bytes have %d", edekLen, len(data))
	}
	w.Edek = data[:edekLen]
	data = data[edekLen:]

	if len(data) < 2+gcmNonceSize {
		return w, fmt.Errorf("encryption: wrapper too short for aad/cipher/iv")
	}
	w.AadCode = AadCode(data[0])
	w.CipherCode = CipherCode(data[1])
	data = data[2:]
	w.IV = data[:gcmNonceSize]
	w.Ciphertext = data[gcmNonceSize:]

	if w.AadCode != AadNone {
		return w, fmt.Errorf("encryption: unsupported aad code %d", w.AadCode)
	}
	if w.CipherCode != CipherAes256Gcm {
		return w, fmt.Errorf("encryption: unsupported cipher code %d", w.CipherCode)
	}
	if len(w.Ciphertext) < gcmTagSize {
		return w, fmt.Errorf("encryption: ciphertext shorter than gcm tag")
	}
	return w, nil
}

// SealParcel encrypts a parcel's plaintext bytes under dek and wraps the
// result with edek for in-band transport. AAD is always empty for V1 — see
// DESIGN.md for why binding AAD to topic/partition was deferred.
func SealParcel(dek, edek []byte, plaintext []byte, nonce func([]byte) error) (Wrapper, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return Wrapper{}, fmt.Errorf("encryption: dek cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Wrapper{}, fmt.Errorf("encryption: gcm: %w", err)
	}
	iv := make([]byte, gcm.NonceSize())
	if err := nonce(iv); err != nil {
		return Wrapper{}, fmt.Errorf("encryption: nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	return Wrapper{
		Edek:       edek,
		AadCode:    AadNone,
		CipherCode: CipherAes256Gcm,
		IV:         iv,
		Ciphertext: ciphertext,
	}, nil
}

// wrapperSize returns the exact wire length of a Wrapper sealing
// plaintextLen bytes under an edek of edekLen bytes, so a caller on the
// batch-encrypt hot path can size a pooled scratch buffer up front instead
// of letting Seal/Encode allocate fresh memory per record.
func wrapperSize(edekLen, plaintextLen int) int {
	return uvarintLen(uint64(edekLen)) + edekLen + 2 + gcmNonceSize + plaintextLen + gcmTagSize
}

// SealParcelInto is SealParcel but writes the sealed record's full wire
// form directly into dst (capacity at least wrapperSize(len(edek),
// len(plaintext))) instead of building a Wrapper and then Encode-ing it —
// the IV is written into dst first and GCM seals the ciphertext onto dst's
// tail in place, so the whole operation costs no heap allocation beyond
// what dst's owner already paid for when it was borrowed from the pool.
func SealParcelInto(dst, dek, edek, plaintext []byte, nonce func([]byte) error) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("encryption: dek cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: gcm: %w", err)
	}

	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(edek)))

	buf := append(dst[:0], tmp[:n]...)
	buf = append(buf, edek...)
	buf = append(buf, byte(AadNone), byte(CipherAes256Gcm))

	ivOffset := len(buf)
	var zero [gcmNonceSize]byte
	buf = append(buf, zero[:]...)
	iv := buf[ivOffset : ivOffset+gcmNonceSize]
	if err := nonce(iv); err != nil {
		return nil, fmt.Errorf("encryption: nonce: %w", err)
	}

	return gcm.Seal(buf, iv, plaintext, nil), nil
}

// OpenParcel decrypts w's ciphertext with the given plaintext DEK, returning
// the parcel plaintext bytes for DecodeParcel.
func OpenParcel(dek []byte, w Wrapper) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("encryption: dek cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: gcm: %w", err)
	}
	plain, err := gcm.Open(nil, w.IV, w.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("encryption: gcm open: %w", err)
	}
	return plain, nil
}
