// Package localkms is a process-local stand-in for a real KMS, used in
// tests and single-node deployments where standing up AWS KMS is overkill.
// Root keys never leave the process; EDEKs are plain AES-256-GCM envelopes
// over the DEK rather than a real KMS wire format.
package localkms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"sync"

	kmsiface "github.com/edgekafka/edgekafka/internal/kms"
)

// Client holds a fixed set of named root keys (kekID -> 32-byte AES key),
// generated or loaded once at startup.
type Client struct {
	mu   sync.RWMutex
	keks map[string][]byte
}

// New returns a Client with no root keys; call AddKek or GenerateKek before
// first use.
func New() *Client {
	return &Client{keks: make(map[string][]byte)}
}

// AddKek registers a root key under kekID. key must be 16, 24, or 32 bytes.
func (c *Client) AddKek(kekID string, key []byte) error {
	if _, err := aes.NewCipher(key); err != nil {
		return fmt.Errorf("localkms: invalid key for %q: %w", kekID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keks[kekID] = append([]byte(nil), key...)
	return nil
}

// GenerateKek creates and registers a new random 32-byte root key under
// kekID, for tests and local deployments that don't manage key material
// externally.
func (c *Client) GenerateKek(kekID string) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	return c.AddKek(kekID, key)
}

func (c *Client) kek(kekID string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keks[kekID]
	if !ok {
		return nil, fmt.Errorf("localkms: unknown kek %q", kekID)
	}
	return key, nil
}

// GenerateDekPair mints a fresh 32-byte DEK and wraps it with the named
// root key using AES-GCM; the EDEK is nonce || ciphertext+tag.
func (c *Client) GenerateDekPair(ctx context.Context, kekID string) (kmsiface.DekPair, error) {
	kekKey, err := c.kek(kekID)
	if err != nil {
		return kmsiface.DekPair{}, err
	}
	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return kmsiface.DekPair{}, fmt.Errorf("localkms: generating dek: %w", err)
	}
	edek, err := wrap(kekKey, dek)
	if err != nil {
		return kmsiface.DekPair{}, err
	}
	return kmsiface.DekPair{Plaintext: dek, Edek: edek}, nil
}

// DecryptEdek unwraps an EDEK previously produced by GenerateDekPair.
func (c *Client) DecryptEdek(ctx context.Context, kekID string, edek []byte) ([]byte, error) {
	kekKey, err := c.kek(kekID)
	if err != nil {
		return nil, err
	}
	return unwrap(kekKey, edek)
}

func wrap(kekKey, dek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kekKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, dek, nil)
	return append(nonce, ciphertext...), nil
}

func unwrap(kekKey, edek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kekKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(edek) < gcm.NonceSize() {
		return nil, fmt.Errorf("localkms: edek too short")
	}
	nonce, ciphertext := edek[:gcm.NonceSize()], edek[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
