package filter

import (
	"context"
	"testing"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

func TestBrokerRewriteFilterRewritesKnownNodes(t *testing.T) {
	f := &BrokerRewriteFilter{
		Rules: []BrokerAddressRule{
			{NodeID: 1, AdvertisedHost: "proxy.example.com", AdvertisedPort: 9092},
		},
	}

	resp := &kafka.Response{
		Body: kafka.MetadataResponse{
			Brokers: []kafka.MetadataBroker{
				{NodeID: 1, Host: "internal-broker-1", Port: 9093},
				{NodeID: 2, Host: "internal-broker-2", Port: 9093},
			},
		},
	}

	if _, err := f.OnResponse(context.Background(), resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	meta := resp.Body.(kafka.MetadataResponse)
	if meta.Brokers[0].Host != "proxy.example.com" || meta.Brokers[0].Port != 9092 {
		t.Fatalf("node 1 not rewritten: %+v", meta.Brokers[0])
	}
	if meta.Brokers[1].Host != "internal-broker-2" || meta.Brokers[1].Port != 9093 {
		t.Fatalf("node 2 without a rule should be left untouched: %+v", meta.Brokers[1])
	}
}

func TestBrokerRewriteFilterIgnoresOtherBodyTypes(t *testing.T) {
	f := &BrokerRewriteFilter{Rules: []BrokerAddressRule{{NodeID: 1, AdvertisedHost: "x", AdvertisedPort: 1}}}
	resp := &kafka.Response{Body: kafka.ApiVersionsResponse{}}

	if _, err := f.OnResponse(context.Background(), resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resp.Body.(kafka.ApiVersionsResponse); !ok {
		t.Fatalf("body type should be left unchanged, got %T", resp.Body)
	}
}

func TestBrokerRewriteFilterAPIKeys(t *testing.T) {
	f := &BrokerRewriteFilter{}
	keys := f.APIKeys()
	if len(keys) != 1 || keys[0] != kafka.APIKeyMetadata {
		t.Fatalf("expected only Metadata key, got %v", keys)
	}
}
