package kafka

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello kafka frame")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}

func TestReadFrameReturnsEOFOnEmptyStream(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	lenBuf[0] = 0xFF // length far beyond MaxFrameSize
	buf.Write(lenBuf[:])
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected an error for a frame length exceeding MaxFrameSize")
	}
}

func TestReadFrameErrorsOnTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	lenBuf[3] = 10 // claims 10 bytes of payload
	buf.Write(lenBuf[:])
	buf.Write([]byte("short"))
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected an error for a truncated frame body")
	}
}

func TestDecodeRequestOpaquePassthroughWhenNotSubscribed(t *testing.T) {
	clientID := "cli"
	header := RequestHeader{APIKey: APIKeyProduce, APIVersion: 7, CorrelationID: 3, ClientID: &clientID, HeaderVersion: 1}
	w := NewWriter()
	header.Encode(w)
	w.Raw([]byte("opaque produce body"))

	req, err := DecodeRequest(w.Bytes(), AlwaysOpaque)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Body != nil {
		t.Fatal("expected no structured body when the predicate declines decode")
	}
	if !bytes.Equal(req.Raw, []byte("opaque produce body")) {
		t.Fatalf("got %q", req.Raw)
	}
}

func TestDecodeRequestStructuredThenEncodeRoundTrip(t *testing.T) {
	header := RequestHeader{APIKey: APIKeyProduce, APIVersion: 7, CorrelationID: 11, HeaderVersion: 1}
	original := ProduceRequest{
		Acks:      -1,
		TimeoutMs: 1000,
		Topics: []ProduceTopicData{
			{Name: "orders", Partitions: []ProducePartitionData{{Index: 0, Records: []byte("recordbatch")}}},
		},
	}
	w := NewWriter()
	header.Encode(w)
	encodeProduceRequest(w, 7, original)

	req, err := DecodeRequest(w.Bytes(), func(h RequestHeader) bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := req.Body.(ProduceRequest)
	if !ok {
		t.Fatalf("expected a decoded ProduceRequest, got %T", req.Body)
	}
	if body.Topics[0].Name != "orders" || !bytes.Equal(body.Topics[0].Partitions[0].Records, []byte("recordbatch")) {
		t.Fatalf("decoded body mismatch: %+v", body)
	}

	reencoded := EncodeRequest(req)
	req2, err := DecodeRequest(reencoded, func(h RequestHeader) bool { return true })
	if err != nil {
		t.Fatalf("unexpected error re-decoding: %v", err)
	}
	body2 := req2.Body.(ProduceRequest)
	if body2.Topics[0].Name != body.Topics[0].Name {
		t.Fatal("expected the re-encoded request to decode identically")
	}
}

func TestDecodeRequestErrorsOnMalformedSubscribedBody(t *testing.T) {
	header := RequestHeader{APIKey: APIKeyProduce, APIVersion: 7, CorrelationID: 1, HeaderVersion: 1}
	w := NewWriter()
	header.Encode(w)
	w.Raw([]byte{1}) // far too short to be a valid Produce body

	if _, err := DecodeRequest(w.Bytes(), func(h RequestHeader) bool { return true }); err == nil {
		t.Fatal("expected an error decoding a malformed body for a subscribed api key")
	}
}

func TestDecodeResponseOpaquePassthrough(t *testing.T) {
	header := ResponseHeader{CorrelationID: 5, HeaderVersion: 0}
	w := NewWriter()
	header.Encode(w)
	w.Raw([]byte("opaque response body"))

	resp, err := DecodeResponse(w.Bytes(), 0, APIKeyProduce, 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body != nil {
		t.Fatal("expected no structured body")
	}
	if !bytes.Equal(resp.Raw, []byte("opaque response body")) {
		t.Fatalf("got %q", resp.Raw)
	}
}

func TestDecodeResponseStructuredThenEncodeRoundTrip(t *testing.T) {
	header := ResponseHeader{CorrelationID: 8, HeaderVersion: 0}
	original := ProduceResponse{
		Topics: []ProduceTopicResponse{
			{Name: "orders", Partitions: []ProducePartitionResponse{{Index: 0, ErrorCode: ErrNone, BaseOffset: 100}}},
		},
	}
	w := NewWriter()
	header.Encode(w)
	encodeProduceResponse(w, 7, original)

	resp, err := DecodeResponse(w.Bytes(), 0, APIKeyProduce, 7, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := resp.Body.(ProduceResponse)
	if !ok {
		t.Fatalf("expected a decoded ProduceResponse, got %T", resp.Body)
	}
	if body.Topics[0].Partitions[0].BaseOffset != 100 {
		t.Fatalf("decoded response mismatch: %+v", body)
	}

	reencoded := EncodeResponse(resp, APIKeyProduce, 7)
	resp2, err := DecodeResponse(reencoded, 0, APIKeyProduce, 7, true)
	if err != nil {
		t.Fatalf("unexpected error re-decoding: %v", err)
	}
	if resp2.Body.(ProduceResponse).Topics[0].Partitions[0].BaseOffset != 100 {
		t.Fatal("expected the re-encoded response to decode identically")
	}
}

func TestResponseHeaderVersionForExposesInternalRule(t *testing.T) {
	if v := ResponseHeaderVersionFor(APIKeyApiVersions, 3); v != 0 {
		t.Fatalf("expected ApiVersions response header version 0, got %d", v)
	}
	if v := ResponseHeaderVersionFor(APIKeyFetch, 12); v != 1 {
		t.Fatalf("expected flexible Fetch response header version 1, got %d", v)
	}
}
