// Package deadletter forwards records the encryption filter could not
// decrypt to an SQS queue for offline inspection, instead of merely
// logging and substituting a sentinel value in place for the consumer.
package deadletter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Record is what gets forwarded for one decrypt failure: enough to locate
// the original record and diagnose why it failed, without ever carrying
// plaintext key material.
type Record struct {
	ClusterID string    `json:"clusterId"`
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	KekID     string    `json:"kekId"`
	Reason    string    `json:"reason"`
	RawValue  string    `json:"rawValueBase64"`
	At        time.Time `json:"at"`
}

// Forwarder sends decrypt-failure records to SQS. A nil *Forwarder is a
// valid no-op value — constructed only when a binding's config carries a
// deadLetter section.
type Forwarder struct {
	client   *sqs.Client
	queueURL string
}

func New(client *sqs.Client, queueURL string) *Forwarder {
	return &Forwarder{client: client, queueURL: queueURL}
}

// Forward sends rec as one SQS message, best-effort: callers treat a
// non-nil error as "log and move on," never as a reason to fail the
// record's own decrypt-failure handling, since dead-letter forwarding is
// diagnostic tooling, not part of the data path's correctness.
func (f *Forwarder) Forward(ctx context.Context, rec Record) error {
	if f == nil {
		return nil
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("deadletter: marshal record: %w", err)
	}
	_, err = f.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("deadletter: send message: %w", err)
	}
	return nil
}

// EncodeValue base64-encodes a raw record value for inclusion in Record,
// since the value itself may not be valid JSON/UTF-8.
func EncodeValue(v []byte) string {
	return base64.StdEncoding.EncodeToString(v)
}
