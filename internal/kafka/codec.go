package kafka

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize caps a single frame's payload length, matching Kafka's
// default message.max.bytes plus protocol overhead headroom.
const MaxFrameSize = 256 * 1024 * 1024

// ReadFrame reads one length-prefixed frame from r: a big-endian int32
// length followed by that many payload bytes. Returns io.EOF only when zero
// bytes were read before the length prefix; a partial frame is a wire error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("kafka: frame length %d exceeds max %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("kafka: short frame body: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed with its big-endian int32 length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// DecodeRequest parses one request frame's header, then either decodes the
// body (if decodeBody reports true for this header) or retains the
// remaining bytes opaquely.
func DecodeRequest(payload []byte, decodeBody DecodePredicate) (Request, error) {
	r := NewReader(payload)
	header, err := DecodeRequestHeader(r)
	if err != nil {
		return Request{}, err
	}

	if !decodeBody(header) {
		return Request{Header: header, Raw: append([]byte(nil), r.Remaining()...)}, nil
	}

	body, err := decodeRequestBody(header, r)
	if err != nil {
		// Malformed body for an API key we committed to parsing is a
		// framing error per spec: the connection is terminated by the
		// caller, not silently downgraded to raw passthrough.
		return Request{}, fmt.Errorf("kafka: decode body for apiKey=%d correlationId=%d: %w",
			header.APIKey, header.CorrelationID, err)
	}
	return Request{Header: header, Body: body}, nil
}

// EncodeRequest re-serializes a Request: header plus either the retained raw
// body or a re-encoded structured body.
func EncodeRequest(req Request) []byte {
	w := NewWriterSize(64)
	req.Header.Encode(w)
	if req.Body != nil {
		encodeRequestBody(w, req.Header, req.Body)
	} else {
		w.Raw(req.Raw)
	}
	return w.Bytes()
}

// DecodeResponse parses one response frame given the header version and,
// when the body is to be parsed, the apiKey/apiVersion recovered from the
// backend handler's correlation-id tracker.
func DecodeResponse(payload []byte, headerVersion int16, apiKey APIKey, apiVersion int16, decodeBody bool) (Response, error) {
	r := NewReader(payload)
	header, err := DecodeResponseHeader(r, headerVersion)
	if err != nil {
		return Response{}, err
	}

	if !decodeBody {
		return Response{Header: header, HeaderVersion: headerVersion, Raw: append([]byte(nil), r.Remaining()...)}, nil
	}

	body, err := decodeResponseBody(apiKey, apiVersion, r)
	if err != nil {
		return Response{}, fmt.Errorf("kafka: decode response body for apiKey=%d correlationId=%d: %w",
			apiKey, header.CorrelationID, err)
	}
	return Response{Header: header, HeaderVersion: headerVersion, Body: body}, nil
}

// EncodeResponse re-serializes a Response.
func EncodeResponse(resp Response, apiKey APIKey, apiVersion int16) []byte {
	w := NewWriterSize(64)
	resp.Header.Encode(w)
	if resp.Body != nil {
		encodeResponseBody(w, apiKey, apiVersion, resp.Body)
	} else {
		w.Raw(resp.Raw)
	}
	return w.Bytes()
}

// ResponseHeaderVersionFor exposes responseHeaderVersion to callers outside
// this package (the backend handler, which must pick the header version
// before it has decoded anything).
func ResponseHeaderVersionFor(apiKey APIKey, apiVersion int16) int16 {
	return responseHeaderVersion(apiKey, apiVersion)
}
