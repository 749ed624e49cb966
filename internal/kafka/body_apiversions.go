package kafka

import "fmt"

// ApiVersionsRequest (api key 18) — the client's supported version range
// probe. The proxy decodes this so the built-in ApiVersions filter can
// recognise it and short-circuit with a response built from its own
// upstream ranges rather than forwarding upstream. The request itself
// carries no version ranges, only the v3+ client software name/version.
type ApiVersionsRequest struct {
	ClientSoftwareName    string // v3+, empty below
	ClientSoftwareVersion string // v3+, empty below
}

// ApiVersionsResponseKey is one entry in an ApiVersionsResponse's ApiKeys array.
type ApiVersionsResponseKey struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// ApiVersionsResponse (api key 18).
type ApiVersionsResponse struct {
	ErrorCode      int16
	APIKeys        []ApiVersionsResponseKey
	ThrottleTimeMs int32
}

func decodeApiVersionsRequest(hdr RequestHeader, r *Reader) (ApiVersionsRequest, error) {
	var req ApiVersionsRequest
	if hdr.APIVersion >= 3 {
		var err error
		if hdr.HeaderVersion >= 2 {
			req.ClientSoftwareName, err = r.CompactString()
		} else {
			req.ClientSoftwareName, err = r.String()
		}
		if err != nil {
			return req, fmt.Errorf("client_software_name: %w", err)
		}
		if hdr.HeaderVersion >= 2 {
			req.ClientSoftwareVersion, err = r.CompactString()
		} else {
			req.ClientSoftwareVersion, err = r.String()
		}
		if err != nil {
			return req, fmt.Errorf("client_software_version: %w", err)
		}
		if IsFlexible(APIKeyApiVersions, hdr.APIVersion) {
			if _, err := r.TagBuffer(); err != nil {
				return req, err
			}
		}
	}
	return req, nil
}

func encodeApiVersionsRequest(w *Writer, hdr RequestHeader, req ApiVersionsRequest) {
	if hdr.APIVersion >= 3 {
		flexible := IsFlexible(APIKeyApiVersions, hdr.APIVersion)
		if flexible {
			w.CompactString(req.ClientSoftwareName)
			w.CompactString(req.ClientSoftwareVersion)
			w.EmptyTagBuffer()
		} else {
			w.String(req.ClientSoftwareName)
			w.String(req.ClientSoftwareVersion)
		}
	}
}

func decodeApiVersionsResponse(apiVersion int16, r *Reader) (ApiVersionsResponse, error) {
	var resp ApiVersionsResponse
	flexible := IsFlexible(APIKeyApiVersions, apiVersion)

	ec, err := r.Int16()
	if err != nil {
		return resp, err
	}
	resp.ErrorCode = ec

	var count int
	if flexible {
		n, err := r.Uvarint()
		if err != nil {
			return resp, err
		}
		if n > 0 {
			count = int(n) - 1
		}
	} else {
		n, err := r.Int32()
		if err != nil {
			return resp, err
		}
		count = int(n)
	}

	resp.APIKeys = make([]ApiVersionsResponseKey, 0, count)
	for i := 0; i < count; i++ {
		var k ApiVersionsResponseKey
		if k.APIKey, err = r.Int16(); err != nil {
			return resp, err
		}
		if k.MinVersion, err = r.Int16(); err != nil {
			return resp, err
		}
		if k.MaxVersion, err = r.Int16(); err != nil {
			return resp, err
		}
		if flexible {
			if _, err := r.TagBuffer(); err != nil {
				return resp, err
			}
		}
		resp.APIKeys = append(resp.APIKeys, k)
	}

	if apiVersion >= 1 {
		if resp.ThrottleTimeMs, err = r.Int32(); err != nil {
			return resp, err
		}
	}
	if flexible {
		if _, err := r.TagBuffer(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func encodeApiVersionsResponse(w *Writer, apiVersion int16, resp ApiVersionsResponse) {
	flexible := IsFlexible(APIKeyApiVersions, apiVersion)
	w.Int16(resp.ErrorCode)
	if flexible {
		w.Uvarint(uint64(len(resp.APIKeys)) + 1)
	} else {
		w.Int32(int32(len(resp.APIKeys)))
	}
	for _, k := range resp.APIKeys {
		w.Int16(k.APIKey)
		w.Int16(k.MinVersion)
		w.Int16(k.MaxVersion)
		if flexible {
			w.EmptyTagBuffer()
		}
	}
	if apiVersion >= 1 {
		w.Int32(resp.ThrottleTimeMs)
	}
	if flexible {
		w.EmptyTagBuffer()
	}
}

// Intersect returns the sub-range of [min,max] both the client (per req) and
// the proxy itself (per supported) agree on for a given API key, used by the
// built-in ApiVersions filter to build a short-circuit response that never
// advertises a version range either side can't actually speak.
func Intersect(clientMin, clientMax, proxyMin, proxyMax int16) (lo, hi int16, ok bool) {
	lo = clientMin
	if proxyMin > lo {
		lo = proxyMin
	}
	hi = clientMax
	if proxyMax < hi {
		hi = proxyMax
	}
	return lo, hi, lo <= hi
}
