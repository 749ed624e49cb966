// Package kms defines the interface the encryption filter uses to mint and
// unwrap data-encryption keys, independent of which key-management service
// actually holds the root keys.
package kms

import "context"

// DekPair is a freshly generated data-encryption key: the plaintext bytes
// (used immediately, then zeroed) and its KMS-wrapped form (the EDEK, safe
// to store alongside ciphertext since only the KMS can unwrap it).
type DekPair struct {
	Plaintext []byte
	Edek      []byte
}

// Interface is implemented by every key-management backend this proxy can
// use to source data-encryption keys. A KekID names a root key inside the
// backend's own namespace (an AWS KMS key ARN, a local test key's string
// name); this package never interprets it beyond passing it through.
type Interface interface {
	// GenerateDekPair asks the KMS to mint a new data key under kekID,
	// returning both its plaintext and its wrapped (EDEK) form.
	GenerateDekPair(ctx context.Context, kekID string) (DekPair, error)

	// DecryptEdek unwraps a previously issued EDEK back to its plaintext
	// data key. kekID names the root key the EDEK was wrapped under: the
	// local backend uses it to pick that key, and the AWS backend passes it
	// as the Decrypt call's KeyId.
	DecryptEdek(ctx context.Context, kekID string, edek []byte) ([]byte, error)
}
