// Package awskms adapts AWS KMS to the kms.Interface the encryption filter
// depends on. Every DEK this proxy ever encrypts a record with is minted
// fresh via GenerateDataKey and wrapped by KMS itself — unlike a
// database-backed key store that loads one DEK at startup, this backend
// never caches plaintext key material beyond a single key context's
// lifetime (see internal/encryption).
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	kmsiface "github.com/edgekafka/edgekafka/internal/kms"
)

// Client wraps an AWS KMS client. Key spec is fixed at AES_256 since the
// proxy's parcel cipher is AES-256-GCM.
type Client struct {
	kmsClient *kms.Client
}

// New wraps an already-configured AWS KMS client.
func New(kmsClient *kms.Client) *Client {
	return &Client{kmsClient: kmsClient}
}

func (c *Client) GenerateDekPair(ctx context.Context, kekID string) (kmsiface.DekPair, error) {
	out, err := c.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(kekID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return kmsiface.DekPair{}, fmt.Errorf("awskms: GenerateDataKey: %w", err)
	}
	return kmsiface.DekPair{
		Plaintext: out.Plaintext,
		Edek:      out.CiphertextBlob,
	}, nil
}

func (c *Client) DecryptEdek(ctx context.Context, kekID string, edek []byte) ([]byte, error) {
	out, err := c.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: edek,
		KeyId:          aws.String(kekID),
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: Decrypt: %w", err)
	}
	return out.Plaintext, nil
}
