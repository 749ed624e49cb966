package kafka

// SaslHandshakeRequest (api key 17) — never flexible, per protocol.
type SaslHandshakeRequest struct {
	Mechanism string
}

// SaslHandshakeResponse (api key 17).
type SaslHandshakeResponse struct {
	ErrorCode  int16
	Mechanisms []string
}

// SaslAuthenticateRequest (api key 36) carries the opaque SASL exchange
// bytes; the frontend handler feeds AuthBytes to the configured mechanism
// and never needs to look inside them.
type SaslAuthenticateRequest struct {
	AuthBytes []byte
}

// SaslAuthenticateResponse (api key 36).
type SaslAuthenticateResponse struct {
	ErrorCode         int16
	ErrorMessage      *string
	AuthBytes         []byte
	SessionLifetimeMs int64 // v1+
}

func decodeSaslHandshakeRequest(r *Reader) (SaslHandshakeRequest, error) {
	mech, err := r.String()
	return SaslHandshakeRequest{Mechanism: mech}, err
}

func encodeSaslHandshakeRequest(w *Writer, req SaslHandshakeRequest) {
	w.String(req.Mechanism)
}

func decodeSaslHandshakeResponse(r *Reader) (SaslHandshakeResponse, error) {
	var resp SaslHandshakeResponse
	ec, err := r.Int16()
	if err != nil {
		return resp, err
	}
	resp.ErrorCode = ec
	n, err := r.Int32()
	if err != nil {
		return resp, err
	}
	resp.Mechanisms = make([]string, n)
	for i := range resp.Mechanisms {
		if resp.Mechanisms[i], err = r.String(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func encodeSaslHandshakeResponse(w *Writer, resp SaslHandshakeResponse) {
	w.Int16(resp.ErrorCode)
	w.Int32(int32(len(resp.Mechanisms)))
	for _, m := range resp.Mechanisms {
		w.String(m)
	}
}

func decodeSaslAuthenticateRequest(apiVersion int16, r *Reader) (SaslAuthenticateRequest, error) {
	flexible := IsFlexible(APIKeySaslAuthenticate, apiVersion)
	var b []byte
	var err error
	if flexible {
		b, err = r.CompactBytes()
	} else {
		var n int32
		if n, err = r.Int32(); err == nil {
			b, err = r.Bytes(int(n))
		}
	}
	if flexible && err == nil {
		_, err = r.TagBuffer()
	}
	return SaslAuthenticateRequest{AuthBytes: b}, err
}

func encodeSaslAuthenticateRequest(w *Writer, apiVersion int16, req SaslAuthenticateRequest) {
	flexible := IsFlexible(APIKeySaslAuthenticate, apiVersion)
	if flexible {
		w.CompactBytes(req.AuthBytes)
		w.EmptyTagBuffer()
	} else {
		w.Int32(int32(len(req.AuthBytes)))
		w.Raw(req.AuthBytes)
	}
}

func decodeSaslAuthenticateResponse(apiVersion int16, r *Reader) (SaslAuthenticateResponse, error) {
	var resp SaslAuthenticateResponse
	flexible := IsFlexible(APIKeySaslAuthenticate, apiVersion)

	ec, err := r.Int16()
	if err != nil {
		return resp, err
	}
	resp.ErrorCode = ec

	if flexible {
		resp.ErrorMessage, err = r.CompactNullableString()
	} else {
		resp.ErrorMessage, err = r.NullableString()
	}
	if err != nil {
		return resp, err
	}

	if flexible {
		resp.AuthBytes, err = r.CompactBytes()
	} else {
		var n int32
		if n, err = r.Int32(); err == nil {
			resp.AuthBytes, err = r.Bytes(int(n))
		}
	}
	if err != nil {
		return resp, err
	}

	if apiVersion >= 1 {
		if resp.SessionLifetimeMs, err = r.Int64(); err != nil {
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

func encodeSaslAuthenticateResponse(w *Writer, apiVersion int16, resp SaslAuthenticateResponse) {
	flexible := IsFlexible(APIKeySaslAuthenticate, apiVersion)
	w.Int16(resp.ErrorCode)
	if flexible {
		w.CompactNullableString(resp.ErrorMessage)
		w.CompactBytes(resp.AuthBytes)
	} else {
		w.NullableString(resp.ErrorMessage)
		w.Int32(int32(len(resp.AuthBytes)))
		w.Raw(resp.AuthBytes)
	}
	if apiVersion >= 1 {
		w.Int64(resp.SessionLifetimeMs)
	}
	if flexible {
		w.EmptyTagBuffer()
	}
}
