package filter

import (
	"context"
	"testing"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

func TestAPIVersionsFilterIntersectsSupportedKeys(t *testing.T) {
	f := &APIVersionsFilter{
		UpstreamRanges: map[kafka.APIKey][2]int16{
			kafka.APIKeyProduce: {0, 20}, // broker supports more than this proxy can decode
		},
	}

	req := &kafka.Request{
		Header: kafka.RequestHeader{CorrelationID: 42},
		Body:   kafka.ApiVersionsRequest{},
	}
	result, err := f.OnRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit == nil {
		t.Fatal("expected a short-circuit ApiVersions response")
	}
	resp := result.ShortCircuit.Body.(kafka.ApiVersionsResponse)
	if len(resp.APIKeys) != 1 {
		t.Fatalf("expected exactly one api key in the response, got %v", resp.APIKeys)
	}
	if resp.APIKeys[0].MinVersion != 0 || resp.APIKeys[0].MaxVersion != 9 {
		t.Fatalf("expected the intersection [0,9] with this proxy's supported range, got [%d,%d]",
			resp.APIKeys[0].MinVersion, resp.APIKeys[0].MaxVersion)
	}
	if result.ShortCircuit.Header.CorrelationID != 42 {
		t.Fatalf("expected correlation id to be carried into the response header, got %d", result.ShortCircuit.Header.CorrelationID)
	}
}

func TestAPIVersionsFilterDropsKeyWithNoOverlap(t *testing.T) {
	f := &APIVersionsFilter{
		UpstreamRanges: map[kafka.APIKey][2]int16{
			kafka.APIKeyProduce: {100, 110}, // no overlap with this proxy's [0,9]
		},
	}
	req := &kafka.Request{Body: kafka.ApiVersionsRequest{}}
	result, err := f.OnRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := result.ShortCircuit.Body.(kafka.ApiVersionsResponse)
	if len(resp.APIKeys) != 0 {
		t.Fatalf("expected the non-overlapping key to be dropped, got %v", resp.APIKeys)
	}
}

func TestAPIVersionsFilterPassesThroughUnrestrictedKeyRange(t *testing.T) {
	f := &APIVersionsFilter{
		UpstreamRanges: map[kafka.APIKey][2]int16{
			999: {2, 5}, // an api key this proxy has no opinion about
		},
	}
	req := &kafka.Request{Body: kafka.ApiVersionsRequest{}}
	result, err := f.OnRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := result.ShortCircuit.Body.(kafka.ApiVersionsResponse)
	if len(resp.APIKeys) != 1 || resp.APIKeys[0].MinVersion != 2 || resp.APIKeys[0].MaxVersion != 5 {
		t.Fatalf("expected the upstream range to pass through unmodified, got %v", resp.APIKeys)
	}
}

func TestAPIVersionsFilterIgnoresNonApiVersionsBody(t *testing.T) {
	f := &APIVersionsFilter{}
	req := &kafka.Request{Body: kafka.ProduceRequest{}}
	result, err := f.OnRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != nil {
		t.Fatal("expected no short circuit for a non-ApiVersions body")
	}
}
