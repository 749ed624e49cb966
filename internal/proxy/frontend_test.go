package proxy

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/edgekafka/edgekafka/internal/filter"
	"github.com/edgekafka/edgekafka/internal/kafka"
	"github.com/rs/zerolog"
)

// fakeBroker accepts exactly one connection and echoes back one response
// frame per request frame it receives, preserving whatever correlation id
// the request carried (read straight off the wire, bytes 4:8 of the
// payload) so it doesn't need to understand the rest of the Kafka wire
// format at all.
func fakeBroker(t *testing.T, ln net.Listener, replyBody []byte) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		payload, err := kafka.ReadFrame(conn)
		if err != nil {
			return
		}
		if len(payload) < 8 {
			return
		}
		correlationID := int32(binary.BigEndian.Uint32(payload[4:8]))

		respHeader := kafka.ResponseHeader{CorrelationID: correlationID, HeaderVersion: 0}
		w := kafka.NewWriter()
		respHeader.Encode(w)
		w.Raw(replyBody)

		if err := kafka.WriteFrame(conn, w.Bytes()); err != nil {
			return
		}
	}
}

func TestFrontendHandlerRelaysProduceRequestThroughToBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ln.Close()
	go fakeBroker(t, ln, []byte("reply-payload"))

	chain, err := filter.New(zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cluster := &VirtualCluster{
		ClusterID:         "test-cluster",
		UpstreamBootstrap: ln.Addr().String(),
		Chain:             chain,
	}
	binding := Binding{Cluster: cluster, Upstream: ln.Addr().String()}

	serverSide, clientSide := net.Pipe()
	conn := NewConnection("test-cluster", serverSide, 0, nil)

	fh := NewFrontendHandler(zerolog.Nop())
	handleDone := make(chan error, 1)
	go func() {
		handleDone <- fh.Handle(context.Background(), conn, binding)
	}()

	// Hand-build one Produce v7 request frame: non-flexible header, nil
	// client id, arbitrary opaque body bytes.
	header := kafka.RequestHeader{APIKey: kafka.APIKeyProduce, APIVersion: 7, CorrelationID: 55, HeaderVersion: 1}
	w := kafka.NewWriter()
	header.Encode(w)
	w.Raw([]byte("request-payload"))

	if err := kafka.WriteFrame(clientSide, w.Bytes()); err != nil {
		t.Fatalf("unexpected error writing request: %v", err)
	}

	clientSide.SetReadDeadline(time.Now().Add(5 * time.Second))
	respPayload, err := kafka.ReadFrame(clientSide)
	if err != nil {
		t.Fatalf("unexpected error reading response: %v", err)
	}

	respHeader, err := kafka.DecodeResponseHeader(kafka.NewReader(respPayload), 0)
	if err != nil {
		t.Fatalf("unexpected error decoding response header: %v", err)
	}
	if respHeader.CorrelationID != 55 {
		t.Fatalf("expected the original downstream correlation id 55 to be restored, got %d", respHeader.CorrelationID)
	}

	clientSide.Close()
	select {
	case <-handleDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for FrontendHandler.Handle to return after the client closed")
	}
}
