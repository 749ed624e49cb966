package encryption

import (
	"bytes"
	"context"
	"testing"

	"github.com/edgekafka/edgekafka/internal/filter"
	"github.com/edgekafka/edgekafka/internal/kafka"
	"github.com/edgekafka/edgekafka/internal/kms/localkms"
)

func recordsBlob(t *testing.T, records []kafka.Record) []byte {
	t.Helper()
	blob, err := kafka.EncodeRecordBatches([]kafka.DecodedBatch{{Batch: kafka.RecordBatch{Magic: 2, Records: records}}})
	if err != nil {
		t.Fatalf("unexpected error encoding test records: %v", err)
	}
	return blob
}

func resume(t *testing.T, ctx context.Context) func(filter.FilterResult, error) (filter.FilterResult, error) {
	t.Helper()
	return func(result filter.FilterResult, err error) (filter.FilterResult, error) {
		if err != nil {
			return filter.FilterResult{}, err
		}
		if result.Continuation == nil {
			return result, nil
		}
		return result.Continuation.Resume(ctx)
	}
}

func newTestFilter(t *testing.T, kekID, topic string) *Filter {
	t.Helper()
	kms := localkms.New()
	if err := kms.GenerateKek(kekID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewTransformEngine(NewKeyManager(kms, 0, 0), NewDecryptorCache(kms))
	return NewFilter(engine, StaticTopicKeys{topic: {KekID: kekID}})
}

func TestFilterEncryptsEnrolledTopicOnProduce(t *testing.T) {
	f := newTestFilter(t, "kek-1", "orders")
	ctx := context.Background()

	blob := recordsBlob(t, []kafka.Record{{Key: []byte("k"), Value: []byte("secret")}})
	req := &kafka.Request{
		Header: kafka.RequestHeader{CorrelationID: 1},
		Body: kafka.ProduceRequest{
			Topics: []kafka.ProduceTopicData{
				{Name: "orders", Partitions: []kafka.ProducePartitionData{{Index: 0, Records: blob}}},
			},
		},
	}

	result, err := resume(t, ctx)(f.OnRequest(ctx, req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != nil {
		t.Fatalf("unexpected short circuit: %+v", result.ShortCircuit)
	}

	preq := req.Body.(kafka.ProduceRequest)
	rewritten := preq.Topics[0].Partitions[0].Records
	if bytes.Equal(rewritten, blob) {
		t.Fatal("expected enrolled topic's records to be rewritten")
	}
}

func TestFilterLeavesUnenrolledTopicUntouchedOnProduce(t *testing.T) {
	f := newTestFilter(t, "kek-1", "orders")
	ctx := context.Background()

	blob := recordsBlob(t, []kafka.Record{{Key: []byte("k"), Value: []byte("plain")}})
	req := &kafka.Request{
		Body: kafka.ProduceRequest{
			Topics: []kafka.ProduceTopicData{
				{Name: "unenrolled", Partitions: []kafka.ProducePartitionData{{Index: 0, Records: blob}}},
			},
		},
	}

	if _, err := resume(t, ctx)(f.OnRequest(ctx, req)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preq := req.Body.(kafka.ProduceRequest)
	if !bytes.Equal(preq.Topics[0].Partitions[0].Records, blob) {
		t.Fatal("unenrolled topic's records should not be touched")
	}
}

func TestFilterRoundTripsProduceThenFetch(t *testing.T) {
	f := newTestFilter(t, "kek-1", "orders")
	ctx := context.Background()

	original := []kafka.Record{{Key: []byte("k"), Value: []byte("secret payload")}}
	blob := recordsBlob(t, original)
	req := &kafka.Request{
		Body: kafka.ProduceRequest{
			Topics: []kafka.ProduceTopicData{
				{Name: "orders", Partitions: []kafka.ProducePartitionData{{Index: 0, Records: blob}}},
			},
		},
	}
	if _, err := resume(t, ctx)(f.OnRequest(ctx, req)); err != nil {
		t.Fatalf("unexpected produce error: %v", err)
	}
	encryptedBlob := req.Body.(kafka.ProduceRequest).Topics[0].Partitions[0].Records

	var gotFailures []DecryptFailure
	f.OnDecryptFailure = func(topic string, partition int32, failures []DecryptFailure) {
		gotFailures = append(gotFailures, failures...)
	}

	resp := &kafka.Response{
		Body: kafka.FetchResponse{
			Topics: []kafka.FetchTopicResponse{
				{Name: "orders", Partitions: []kafka.FetchPartitionResponse{{Index: 0, Records: encryptedBlob}}},
			},
		},
	}
	if _, err := resume(t, ctx)(f.OnResponse(ctx, resp)); err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(gotFailures) != 0 {
		t.Fatalf("expected no decrypt failures, got %v", gotFailures)
	}

	fresp := resp.Body.(kafka.FetchResponse)
	batches, err := kafka.DecodeRecordBatches(fresp.Topics[0].Partitions[0].Records)
	if err != nil {
		t.Fatalf("unexpected error decoding final records: %v", err)
	}
	if !bytes.Equal(batches[0].Batch.Records[0].Value, original[0].Value) {
		t.Fatalf("expected decrypted value to match original, got %q", batches[0].Batch.Records[0].Value)
	}
}

func TestFilterRejectsHeaderEncryptionOnTombstoneViaShortCircuit(t *testing.T) {
	kms := localkms.New()
	if err := kms.GenerateKek("kek-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewTransformEngine(NewKeyManager(kms, 0, 0), NewDecryptorCache(kms))
	f := NewFilter(engine, StaticTopicKeys{"orders": {KekID: "kek-1", EncryptHeaders: true}})

	blob := recordsBlob(t, []kafka.Record{{Key: []byte("k"), Value: nil}})
	req := &kafka.Request{
		Header: kafka.RequestHeader{CorrelationID: 7, APIVersion: 9},
		Body: kafka.ProduceRequest{
			Topics: []kafka.ProduceTopicData{
				{Name: "orders", Partitions: []kafka.ProducePartitionData{{Index: 0, Records: blob}}},
			},
		},
	}

	result, err := resume(t, context.Background())(f.OnRequest(context.Background(), req))
	if err != nil {
		t.Fatalf("unexpected driver-level error: %v", err)
	}
	if result.ShortCircuit == nil {
		t.Fatal("expected a short-circuit ProduceResponse rather than a connection-level error")
	}
	presp := result.ShortCircuit.Body.(kafka.ProduceResponse)
	if presp.Topics[0].Partitions[0].ErrorCode != kafka.ErrInvalidRecord {
		t.Fatalf("expected ErrInvalidRecord, got %v", presp.Topics[0].Partitions[0].ErrorCode)
	}
}

func TestFilterAPIKeysScopedToProduceAndFetch(t *testing.T) {
	f := newTestFilter(t, "kek-1", "orders")
	keys := f.APIKeys()
	want := map[kafka.APIKey]bool{kafka.APIKeyProduce: true, kafka.APIKeyFetch: true}
	if len(keys) != 2 {
		t.Fatalf("expected exactly 2 scoped api keys, got %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Fatalf("unexpected api key in scope: %v", k)
		}
	}
}
