package encryption

import (
	"sync"
	"time"
)

// KeyContext wraps one plaintext DEK plus the lease bookkeeping that
// decides when it must be retired: an encryption-count budget (some KMS
// policies cap how many messages a single DEK may protect) and a wall-clock
// expiry. Every field after dek/edek is guarded by mu since many producer
// connections can lease the same context concurrently.
type KeyContext struct {
	mu sync.Mutex

	kekID     string
	dek       []byte
	edek      []byte
	createdAt time.Time
	expiresAt time.Time // zero means no expiry
	remaining int64      // -1 means unlimited
	destroyed bool
}

func newKeyContext(kekID string, dek, edek []byte, ttl time.Duration, maxEncryptions int64, now time.Time) *KeyContext {
	kc := &KeyContext{
		kekID:     kekID,
		dek:       dek,
		edek:      edek,
		createdAt: now,
		remaining: maxEncryptions,
	}
	if ttl > 0 {
		kc.expiresAt = now.Add(ttl)
	}
	return kc
}

// Lease reserves n units of this context's remaining-encryptions budget for
// one batch, returning false if the context is destroyed, expired, or
// cannot cover n more encryptions. A context that cannot cover n is
// destroyed as part of this call (zeroizing its DEK) so no later lease can
// partially exhaust it — the caller must evict it from whatever cache holds
// it and retry against a fresh context. The caller must not use the
// context's DEK for a new batch unless Lease returns true.
func (kc *KeyContext) Lease(now time.Time, n int64) bool {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if kc.destroyed {
		return false
	}
	if !kc.expiresAt.IsZero() && !now.Before(kc.expiresAt) {
		kc.destroyLocked()
		return false
	}
	if kc.remaining >= 0 && kc.remaining < n {
		kc.destroyLocked()
		return false
	}
	if kc.remaining >= 0 {
		kc.remaining -= n
	}
	return true
}

// Encrypt seals plaintext under this context's DEK, identifying itself to
// the decrypt side via the wrapped EDEK. plaintext may be backed by a
// pooled scratch buffer the caller reuses for the next record; Encrypt does
// not retain it past this call.
func (kc *KeyContext) Encrypt(plaintext []byte, nonce func([]byte) error) (Wrapper, error) {
	kc.mu.Lock()
	dek, edek := kc.dek, kc.edek
	kc.mu.Unlock()
	return SealParcel(dek, edek, plaintext, nonce)
}

// EncryptInto is Encrypt but writes the sealed record's wire form directly
// into dst instead of allocating a fresh Wrapper and ciphertext per call —
// see SealParcelInto and wrapperSize.
func (kc *KeyContext) EncryptInto(dst, plaintext []byte, nonce func([]byte) error) ([]byte, error) {
	kc.mu.Lock()
	dek, edek := kc.dek, kc.edek
	kc.mu.Unlock()
	return SealParcelInto(dst, dek, edek, plaintext, nonce)
}

// EdekLen reports the length of this context's wrapped EDEK, so a caller
// can size a pooled wire-format buffer (wrapperSize) before it knows
// anything else about the context.
func (kc *KeyContext) EdekLen() int {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return len(kc.edek)
}

// Destroy zeroes the plaintext DEK and marks the context unusable for any
// future lease. Safe to call more than once.
func (kc *KeyContext) Destroy() {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.destroyLocked()
}

// destroyLocked is Destroy's body for callers already holding mu.
func (kc *KeyContext) destroyLocked() {
	if kc.destroyed {
		return
	}
	for i := range kc.dek {
		kc.dek[i] = 0
	}
	kc.destroyed = true
}

// Expired reports whether the context is past its TTL as of now, without
// consuming a lease — used by the rotation reconciler to decide whether a
// context is a candidate for proactive replacement.
func (kc *KeyContext) Expired(now time.Time) bool {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return !kc.expiresAt.IsZero() && !now.Before(kc.expiresAt)
}
