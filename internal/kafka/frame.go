package kafka

import "fmt"

// RequestHeader is the portion of a Kafka request frame that precedes the
// API-specific body: api_key, api_version, correlation_id, client_id, and
// (for flexible versions) a trailing tagged-field section.
type RequestHeader struct {
	APIKey        APIKey
	APIVersion    int16
	CorrelationID int32
	ClientID      *string
	TagBuf        []byte // raw, re-encoded verbatim
	HeaderVersion int16  // 1 for non-flexible, 2 for flexible
}

// ResponseHeader is the portion of a Kafka response frame that precedes the
// API-specific body: correlation_id and (for flexible versions) a trailing
// tagged-field section.
type ResponseHeader struct {
	CorrelationID int32
	TagBuf        []byte
	HeaderVersion int16
}

// requestHeaderVersion returns the header version used by requests of the
// given API key/version, per the Kafka protocol's header versioning rules.
func requestHeaderVersion(apiKey APIKey, apiVersion int16) int16 {
	if apiKey == APIKeySaslHandshake {
		return 1
	}
	if IsFlexible(apiKey, apiVersion) {
		return 2
	}
	return 1
}

// DecodeRequestHeader parses the header of a request frame. It does not
// consume the body — callers use the returned header plus the caller-chosen
// decode predicate to decide whether to go on to decode the body or keep it
// as an opaque byte slice.
func DecodeRequestHeader(r *Reader) (RequestHeader, error) {
	apiKey, err := r.Int16()
	if err != nil {
		return RequestHeader{}, fmt.Errorf("kafka: decode api_key: %w", err)
	}
	apiVersion, err := r.Int16()
	if err != nil {
		return RequestHeader{}, fmt.Errorf("kafka: decode api_version: %w", err)
	}
	correlationID, err := r.Int32()
	if err != nil {
		return RequestHeader{}, fmt.Errorf("kafka: decode correlation_id: %w", err)
	}
	clientID, err := r.NullableString()
	if err != nil {
		return RequestHeader{}, fmt.Errorf("kafka: decode client_id: %w", err)
	}

	hv := requestHeaderVersion(apiKey, apiVersion)
	var tagBuf []byte
	if hv >= 2 {
		tagBuf, err = r.TagBuffer()
		if err != nil {
			return RequestHeader{}, fmt.Errorf("kafka: decode request tag buffer: %w", err)
		}
	}

	return RequestHeader{
		APIKey:        apiKey,
		APIVersion:    apiVersion,
		CorrelationID: correlationID,
		ClientID:      clientID,
		TagBuf:        tagBuf,
		HeaderVersion: hv,
	}, nil
}

// Encode appends the request header's wire form to w.
func (h RequestHeader) Encode(w *Writer) {
	w.Int16(h.APIKey)
	w.Int16(h.APIVersion)
	w.Int32(h.CorrelationID)
	w.NullableString(h.ClientID)
	if h.HeaderVersion >= 2 {
		if h.TagBuf != nil {
			w.Raw(h.TagBuf)
		} else {
			w.EmptyTagBuffer()
		}
	}
}

// DecodeResponseHeader parses the header of a response frame, given the
// header version that applies (determined by the matching request's API key
// and version, looked up via correlation id).
func DecodeResponseHeader(r *Reader, headerVersion int16) (ResponseHeader, error) {
	correlationID, err := r.Int32()
	if err != nil {
		return ResponseHeader{}, fmt.Errorf("kafka: decode correlation_id: %w", err)
	}
	var tagBuf []byte
	if headerVersion >= 1 {
		tagBuf, err = r.TagBuffer()
		if err != nil {
			return ResponseHeader{}, fmt.Errorf("kafka: decode response tag buffer: %w", err)
		}
	}
	return ResponseHeader{CorrelationID: correlationID, TagBuf: tagBuf, HeaderVersion: headerVersion}, nil
}

// Encode appends the response header's wire form to w.
func (h ResponseHeader) Encode(w *Writer) {
	w.Int32(h.CorrelationID)
	if h.HeaderVersion >= 1 {
		if h.TagBuf != nil {
			w.Raw(h.TagBuf)
		} else {
			w.EmptyTagBuffer()
		}
	}
}

// responseHeaderVersion mirrors requestHeaderVersion for responses: the
// ApiVersions response itself is a special case (never flexible in its
// header even at high body versions, per KIP-511) which callers needing
// exactness should special-case; the proxy only relies on this for the
// handful of API keys it fully parses.
func responseHeaderVersion(apiKey APIKey, apiVersion int16) int16 {
	if apiKey == APIKeyApiVersions {
		return 0
	}
	if IsFlexible(apiKey, apiVersion) {
		return 1
	}
	return 0
}

// Request is a decoded request frame: the header plus either a raw
// (pass-through) body or a structured body a filter asked for.
type Request struct {
	Header RequestHeader
	// Raw holds the undecoded body bytes when no filter subscribed to
	// this (apiKey, apiVersion). Mutually exclusive with Body.
	Raw []byte
	// Body holds a structured decode of the request when some filter in
	// the chain subscribed to (apiKey, apiVersion). One of the handful of
	// types in internal/kafka/body.go.
	Body any
}

// Response is a decoded response frame, symmetric with Request.
type Response struct {
	Header        ResponseHeader
	HeaderVersion int16
	Raw           []byte
	Body          any
}

// DecodePredicate answers, for a given request header, whether the frame
// codec must fully parse the body instead of forwarding it opaquely. The
// filter chain driver supplies this based on which filters are installed
// and (for requests) whether SASL authentication gating requires inspecting
// this API key regardless of filter subscriptions.
type DecodePredicate func(h RequestHeader) bool

// AlwaysOpaque is a DecodePredicate that never requests structured decode —
// used when no filter in the chain is installed.
func AlwaysOpaque(RequestHeader) bool { return false }
