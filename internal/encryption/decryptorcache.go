package encryption

import (
	"context"
	"fmt"
	"sync"

	kmsiface "github.com/edgekafka/edgekafka/internal/kms"
	"golang.org/x/sync/singleflight"
)

// DecryptorCache memoizes EDEK -> plaintext DEK unwrapping. A topic's
// records sharing one producer session typically share one EDEK, so
// without this cache every record would cost a KMS Decrypt call; with it,
// only the first record for a given EDEK pays that cost.
type DecryptorCache struct {
	kms kmsiface.Interface

	mu     sync.Mutex
	dek    map[string][]byte
	flight singleflight.Group
}

// NewDecryptorCache builds an empty cache backed by kms.
func NewDecryptorCache(kms kmsiface.Interface) *DecryptorCache {
	return &DecryptorCache{kms: kms, dek: make(map[string][]byte)}
}

// Dek returns the plaintext DEK for edek under kekID, unwrapping via the KMS
// on first use and caching the result for subsequent lookups of the same
// EDEK bytes. Concurrent first-lookups for the same EDEK collapse onto a
// single KMS call.
func (c *DecryptorCache) Dek(ctx context.Context, kekID string, edek []byte) ([]byte, error) {
	key := kekID + "\x00" + string(edek)

	c.mu.Lock()
	if dek, ok := c.dek[key]; ok {
		c.mu.Unlock()
		return dek, nil
	}
	c.mu.Unlock()

	result, err, _ := c.flight.Do(key, func() (any, error) {
		c.mu.Lock()
		if dek, ok := c.dek[key]; ok {
			c.mu.Unlock()
			return dek, nil
		}
		c.mu.Unlock()

		dek, err := c.kms.DecryptEdek(ctx, kekID, edek)
		if err != nil {
			return nil, fmt.Errorf("encryption: unwrapping edek under kek %q: %w", kekID, err)
		}
		c.mu.Lock()
		c.dek[key] = dek
		c.mu.Unlock()
		return dek, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Forget evicts every cached DEK unwrapped under kekID, used when a KEK is
// known to have been retired or rotated and stale decrypt results should
// never be served again.
func (c *DecryptorCache) Forget(kekID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := kekID + "\x00"
	for k := range c.dek {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.dek, k)
		}
	}
}
