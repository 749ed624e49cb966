package encryption

import (
	"context"
	"errors"

	"github.com/edgekafka/edgekafka/internal/filter"
	"github.com/edgekafka/edgekafka/internal/kafka"
)

// TopicKeys resolves the encryption scheme a topic is enrolled under. A
// topic absent from the resolver (ok == false) is forwarded untouched on
// both the Produce and Fetch paths — this proxy only ever touches topics an
// operator explicitly enrolled.
type TopicKeys interface {
	SchemeFor(topic string) (Scheme, bool)
}

// StaticTopicKeys is the common case: a fixed topic-to-scheme map loaded
// from virtual cluster configuration.
type StaticTopicKeys map[string]Scheme

func (m StaticTopicKeys) SchemeFor(topic string) (Scheme, bool) {
	s, ok := m[topic]
	return s, ok
}

// Filter is the composite Request/ResponseFilter that performs envelope
// encryption: it rewrites Produce request record values into
// Wrapper-encoded ciphertext on the way in, and decrypts Fetch response
// record values on the way out. It is a single filter value implementing
// both RequestFilter and ResponseFilter, scoped to exactly the two API
// keys it touches.
type Filter struct {
	engine *TransformEngine
	topics TopicKeys

	// OnDecryptFailure, if set, is called once per partition with every
	// per-record integrity failure DecryptBatch reported, so the caller can
	// increment a metric or forward the record to a dead-letter sink
	// without this filter needing to know about either concern.
	OnDecryptFailure func(topic string, partition int32, failures []DecryptFailure)
}

// NewFilter builds the composite encryption filter, grounded on engine for
// the actual seal/open work and topics for deciding which topics to touch.
func NewFilter(engine *TransformEngine, topics TopicKeys) *Filter {
	return &Filter{engine: engine, topics: topics}
}

func (f *Filter) Name() string { return "builtin.encryption" }

func (f *Filter) APIKeys() []kafka.APIKey {
	return []kafka.APIKey{kafka.APIKeyProduce, kafka.APIKeyFetch}
}

// OnRequest handles Produce requests, encrypting every enrolled topic's
// record batches. Non-Produce requests (Fetch falls through OnResponse
// instead) are passed through unchanged. The KMS round trip happens inside
// a pooled Continuation so the driver can, in time, run it off the
// connection's own goroutine without this filter changing shape.
func (f *Filter) OnRequest(ctx context.Context, req *kafka.Request) (filter.FilterResult, error) {
	preq, ok := req.Body.(kafka.ProduceRequest)
	if !ok {
		return filter.FilterResult{}, nil
	}

	cont := filter.Acquire()
	cont.Resume = func(ctx context.Context) (filter.FilterResult, error) {
		for ti, topic := range preq.Topics {
			scheme, ok := f.topics.SchemeFor(topic.Name)
			if !ok {
				continue
			}
			for pi, part := range topic.Partitions {
				rewritten, err := f.encryptPartition(ctx, scheme, part.Records)
				if err != nil {
					if code, ok := produceFailureCode(err); ok {
						return filter.FilterResult{ShortCircuit: produceErrorResponse(req, code)}, nil
					}
					return filter.FilterResult{}, err
				}
				preq.Topics[ti].Partitions[pi].Records = rewritten
			}
		}
		req.Body = preq
		return filter.FilterResult{}, nil
	}
	return filter.FilterResult{Continuation: cont}, nil
}

// OnResponse handles Fetch responses, decrypting every record batch marked
// with the encryption header. Batches nobody ever encrypted, or topics
// never enrolled, pass through unchanged.
func (f *Filter) OnResponse(ctx context.Context, resp *kafka.Response) (filter.FilterResult, error) {
	fresp, ok := resp.Body.(kafka.FetchResponse)
	if !ok {
		return filter.FilterResult{}, nil
	}

	cont := filter.Acquire()
	cont.Resume = func(ctx context.Context) (filter.FilterResult, error) {
		for ti, topic := range fresp.Topics {
			scheme, ok := f.topics.SchemeFor(topic.Name)
			if !ok {
				continue
			}
			for pi, part := range topic.Partitions {
				rewritten, err := f.decryptPartition(ctx, scheme.KekID, topic.Name, part.Index, part.Records)
				if err != nil {
					return filter.FilterResult{}, err
				}
				fresp.Topics[ti].Partitions[pi].Records = rewritten
			}
		}
		resp.Body = fresp
		return filter.FilterResult{}, nil
	}
	return filter.FilterResult{Continuation: cont}, nil
}

func (f *Filter) encryptPartition(ctx context.Context, scheme Scheme, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	batches, err := kafka.DecodeRecordBatches(raw)
	if err != nil {
		return nil, err
	}
	for i, db := range batches {
		if db.Unsupported {
			continue // passed through verbatim by DecodeRecordBatches/EncodeRecordBatches
		}
		encrypted, err := f.engine.EncryptBatch(ctx, scheme, db.Batch)
		if err != nil {
			return nil, err
		}
		batches[i].Batch = encrypted
	}
	return kafka.EncodeRecordBatches(batches)
}

func (f *Filter) decryptPartition(ctx context.Context, kekID, topic string, partition int32, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	batches, err := kafka.DecodeRecordBatches(raw)
	if err != nil {
		return nil, err
	}
	for i, db := range batches {
		if db.Unsupported {
			continue
		}
		decrypted, failures, err := f.engine.DecryptBatch(ctx, kekID, db.Batch)
		if err != nil {
			return nil, err
		}
		if len(failures) > 0 && f.OnDecryptFailure != nil {
			f.OnDecryptFailure(topic, partition, failures)
		}
		batches[i].Batch = decrypted
	}
	return kafka.EncodeRecordBatches(batches)
}

// produceFailureCode maps an EncryptBatch error onto a Kafka error code
// that should short-circuit the whole Produce request, or reports ok=false
// for errors that should instead close the connection (framing-level
// failures have no per-request recovery).
func produceFailureCode(err error) (kafka.ErrorCode, bool) {
	if errors.Is(err, IllegalHeaderEncryptionOnTombstone) {
		return kafka.ErrInvalidRecord, true
	}
	if code := ErrorCodeFor(err); code == kafka.ErrRequestNotSatisfiable {
		return code, true
	}
	return 0, false
}

// produceErrorResponse builds a ProduceResponse reporting code for every
// partition in the original request, used when a batch could not be
// encrypted and the whole request must be failed back to the producer
// rather than partially encrypted.
func produceErrorResponse(req *kafka.Request, code kafka.ErrorCode) *kafka.Response {
	preq := req.Body.(kafka.ProduceRequest)
	presp := kafka.ProduceResponse{Topics: make([]kafka.ProduceTopicResponse, len(preq.Topics))}
	for ti, topic := range preq.Topics {
		tr := kafka.ProduceTopicResponse{Name: topic.Name, Partitions: make([]kafka.ProducePartitionResponse, len(topic.Partitions))}
		for pi, part := range topic.Partitions {
			tr.Partitions[pi] = kafka.ProducePartitionResponse{Index: part.Index, ErrorCode: code, BaseOffset: -1, LogAppendTimeMs: -1}
		}
		presp.Topics[ti] = tr
	}
	return &kafka.Response{
		Header:        kafka.ResponseHeader{CorrelationID: req.Header.CorrelationID, HeaderVersion: kafka.ResponseHeaderVersionFor(kafka.APIKeyProduce, req.Header.APIVersion)},
		HeaderVersion: kafka.ResponseHeaderVersionFor(kafka.APIKeyProduce, req.Header.APIVersion),
		Body:          presp,
	}
}
