package kafka

import "fmt"

// decodeRequestBody dispatches to the structured decoder for header.APIKey.
// Only API keys a filter might plausibly subscribe to at the request side
// are wired here: ApiVersions (for the built-in version-intersection
// filter), SaslHandshake/SaslAuthenticate (for auth gating),
// Produce (for the encryption filter, which rewrites record values on the
// way in), and Fetch. Metadata is a response-only concern for this proxy — nothing
// ever asks for a structured Metadata request — so it is intentionally
// absent here; DecodePredicate implementations must not request it.
func decodeRequestBody(header RequestHeader, r *Reader) (any, error) {
	switch header.APIKey {
	case APIKeyApiVersions:
		return decodeApiVersionsRequest(header, r)
	case APIKeySaslHandshake:
		return decodeSaslHandshakeRequest(r)
	case APIKeySaslAuthenticate:
		return decodeSaslAuthenticateRequest(header.APIVersion, r)
	case APIKeyProduce:
		return decodeProduceRequest(header.APIVersion, r)
	case APIKeyFetch:
		return decodeFetchRequest(header.APIVersion, r)
	default:
		return nil, fmt.Errorf("kafka: no structured request decoder for apiKey=%d", header.APIKey)
	}
}

func encodeRequestBody(w *Writer, header RequestHeader, body any) {
	switch b := body.(type) {
	case ApiVersionsRequest:
		encodeApiVersionsRequest(w, header, b)
	case SaslHandshakeRequest:
		encodeSaslHandshakeRequest(w, b)
	case SaslAuthenticateRequest:
		encodeSaslAuthenticateRequest(w, header.APIVersion, b)
	case ProduceRequest:
		encodeProduceRequest(w, header.APIVersion, b)
	case FetchRequest:
		encodeFetchRequest(w, header.APIVersion, b)
	default:
		panic(fmt.Sprintf("kafka: no structured request encoder for %T", body))
	}
}

// decodeResponseBody dispatches to the structured decoder for a response,
// given the apiKey/apiVersion recovered from the backend handler's
// correlation-id tracker (the response frame itself carries neither).
func decodeResponseBody(apiKey APIKey, apiVersion int16, r *Reader) (any, error) {
	switch apiKey {
	case APIKeyApiVersions:
		return decodeApiVersionsResponse(apiVersion, r)
	case APIKeyMetadata:
		return decodeMetadataResponse(apiVersion, r)
	case APIKeySaslHandshake:
		return decodeSaslHandshakeResponse(r)
	case APIKeySaslAuthenticate:
		return decodeSaslAuthenticateResponse(apiVersion, r)
	case APIKeyProduce:
		return decodeProduceResponse(apiVersion, r)
	case APIKeyFetch:
		return decodeFetchResponse(apiVersion, r)
	default:
		return nil, fmt.Errorf("kafka: no structured response decoder for apiKey=%d", apiKey)
	}
}

func encodeResponseBody(w *Writer, apiKey APIKey, apiVersion int16, body any) {
	switch b := body.(type) {
	case ApiVersionsResponse:
		encodeApiVersionsResponse(w, apiVersion, b)
	case MetadataResponse:
		encodeMetadataResponse(w, apiVersion, b)
	case SaslHandshakeResponse:
		encodeSaslHandshakeResponse(w, b)
	case SaslAuthenticateResponse:
		encodeSaslAuthenticateResponse(w, apiVersion, b)
	case ProduceResponse:
		encodeProduceResponse(w, apiVersion, b)
	case FetchResponse:
		encodeFetchResponse(w, apiVersion, b)
	default:
		panic(fmt.Sprintf("kafka: no structured response encoder for %T", body))
	}
}
