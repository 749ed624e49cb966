package encryption

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgekafka/edgekafka/internal/kafka"
	kmsiface "github.com/edgekafka/edgekafka/internal/kms"
	"golang.org/x/sync/singleflight"
)

// leaseRetryBudget bounds how many times KeyManager.Lease will mint a
// replacement context before giving up — a context can lose a lease race
// (another connection exhausted it between the map lookup and the lease
// attempt) without that being a real failure; three attempts absorbs the
// contention without looping forever on a genuinely broken KMS.
const leaseRetryBudget = 3

// RequestNotSatisfiableError is returned when a DEK lease could not be
// obtained after exhausting the retry budget, distinct from a hard KMS
// failure: the caller should map this to kafka.ErrRequestNotSatisfiable in
// its response to the producer rather than tearing down the connection.
type RequestNotSatisfiableError struct {
	KekID string
	Cause error
}

func (e *RequestNotSatisfiableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("encryption: no DEK lease available for kek %q after retries: %v", e.KekID, e.Cause)
	}
	return fmt.Sprintf("encryption: no DEK lease available for kek %q after retries", e.KekID)
}

func (e *RequestNotSatisfiableError) Unwrap() error { return e.Cause }

// KeyManager coalesces DEK generation per KEK id: many connections
// encrypting under the same virtual cluster's KEK share one context at a
// time rather than each minting its own DEK, and concurrent first-use
// callers for the same KEK collapse onto a single in-flight KMS call via
// singleflight.
type KeyManager struct {
	kms            kmsiface.Interface
	dekTTL         time.Duration
	maxEncryptions int64

	mu       sync.Mutex
	current  map[string]*KeyContext // kekID -> the context new leases are issued from
	flight   singleflight.Group
	now      func() time.Time
}

// NewKeyManager builds a KeyManager backed by kms. dekTTL <= 0 disables
// time-based expiry; maxEncryptions <= 0 disables the count-based budget
// (lease never runs out except via TTL or explicit rotation).
func NewKeyManager(kms kmsiface.Interface, dekTTL time.Duration, maxEncryptions int64) *KeyManager {
	if maxEncryptions <= 0 {
		maxEncryptions = -1 // KeyContext's "unlimited" marker
	}
	return &KeyManager{
		kms:            kms,
		dekTTL:         dekTTL,
		maxEncryptions: maxEncryptions,
		current:        make(map[string]*KeyContext),
		now:            time.Now,
	}
}

// Lease returns a KeyContext with an available lease to encrypt n records
// under kekID as one batch, minting a fresh DEK via the KMS if none exists
// yet or the current one can't cover n more encryptions. Retries up to
// leaseRetryBudget times against the race where another goroutine exhausts
// a context between lookup and lease; each failed attempt evicts the
// context it just found insufficient so the next attempt mints a fresh one.
func (m *KeyManager) Lease(ctx context.Context, kekID string, n int64) (*KeyContext, error) {
	var lastErr error
	for attempt := 0; attempt < leaseRetryBudget; attempt++ {
		kc, err := m.contextFor(ctx, kekID)
		if err != nil {
			lastErr = err
			continue
		}
		if kc.Lease(m.now(), n) {
			return kc, nil
		}
		// Lost the race: this context just got exhausted or expired.
		// Force a fresh one on the next attempt.
		m.mu.Lock()
		if m.current[kekID] == kc {
			delete(m.current, kekID)
		}
		m.mu.Unlock()
	}
	return nil, &RequestNotSatisfiableError{KekID: kekID, Cause: lastErr}
}

func (m *KeyManager) contextFor(ctx context.Context, kekID string) (*KeyContext, error) {
	m.mu.Lock()
	if kc, ok := m.current[kekID]; ok {
		m.mu.Unlock()
		return kc, nil
	}
	m.mu.Unlock()

	result, err, _ := m.flight.Do(kekID, func() (any, error) {
		m.mu.Lock()
		if kc, ok := m.current[kekID]; ok {
			m.mu.Unlock()
			return kc, nil
		}
		m.mu.Unlock()

		pair, err := m.kms.GenerateDekPair(ctx, kekID)
		if err != nil {
			return nil, fmt.Errorf("encryption: generating dek for kek %q: %w", kekID, err)
		}
		kc := newKeyContext(kekID, pair.Plaintext, pair.Edek, m.dekTTL, m.maxEncryptions, m.now())

		m.mu.Lock()
		m.current[kekID] = kc
		m.mu.Unlock()
		return kc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*KeyContext), nil
}

// Rotate forcibly retires the current context for kekID (if any), so the
// next Lease call mints a fresh DEK. Used by internal/rotation's proactive
// reconciler and by explicit operator-triggered rotation.
func (m *KeyManager) Rotate(kekID string) {
	m.mu.Lock()
	kc := m.current[kekID]
	delete(m.current, kekID)
	m.mu.Unlock()
	if kc != nil {
		kc.Destroy()
	}
}

// ErrorCodeFor maps an error produced by Lease to the Kafka error code the
// frontend handler should send back to the producer.
func ErrorCodeFor(err error) kafka.ErrorCode {
	if err == nil {
		return kafka.ErrNone
	}
	var rns *RequestNotSatisfiableError
	if errors.As(err, &rns) {
		return kafka.ErrRequestNotSatisfiable
	}
	return kafka.ErrCorruptMessage
}
