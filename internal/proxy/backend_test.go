package proxy

import (
	"testing"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

func TestCorrelationTrackerAssignAndResolve(t *testing.T) {
	tr := NewCorrelationTracker()

	id1 := tr.Assign(100, 0, kafka.APIKeyProduce, 7)
	id2 := tr.Assign(200, 1, kafka.APIKeyFetch, 11)
	if id1 == id2 {
		t.Fatal("expected distinct upstream ids for distinct requests")
	}

	info1, ok := tr.Resolve(id1)
	if !ok {
		t.Fatal("expected to resolve id1")
	}
	if info1.downstreamID != 100 || info1.apiKey != kafka.APIKeyProduce || info1.apiVersion != 7 {
		t.Fatalf("unexpected info: %+v", info1)
	}

	info2, ok := tr.Resolve(id2)
	if !ok {
		t.Fatal("expected to resolve id2")
	}
	if info2.downstreamID != 200 || info2.seq != 1 {
		t.Fatalf("unexpected info: %+v", info2)
	}
}

func TestCorrelationTrackerResolveIsSingleUse(t *testing.T) {
	tr := NewCorrelationTracker()
	id := tr.Assign(1, 0, kafka.APIKeyProduce, 7)

	if _, ok := tr.Resolve(id); !ok {
		t.Fatal("expected the first resolve to succeed")
	}
	if _, ok := tr.Resolve(id); ok {
		t.Fatal("expected the second resolve of the same id to fail")
	}
}

func TestCorrelationTrackerResolveUnknownIDFails(t *testing.T) {
	tr := NewCorrelationTracker()
	if _, ok := tr.Resolve(999); ok {
		t.Fatal("expected resolving an id that was never assigned to fail")
	}
}

func TestFrameBytesPrefixesBigEndianLength(t *testing.T) {
	payload := []byte("hello")
	framed := frameBytes(payload)
	if len(framed) != 4+len(payload) {
		t.Fatalf("expected length prefix plus payload, got %d bytes", len(framed))
	}
	n := int(framed[0])<<24 | int(framed[1])<<16 | int(framed[2])<<8 | int(framed[3])
	if n != len(payload) {
		t.Fatalf("expected length prefix %d, got %d", len(payload), n)
	}
	if string(framed[4:]) != "hello" {
		t.Fatalf("got %q", framed[4:])
	}
}
