package kafka

// MetadataBroker is one entry in a Metadata response's Brokers array. The
// broker-rewrite filter (filter.BrokerRewriteFilter) rewrites Host/Port here to the proxy's own
// advertised address before the frame is relayed downstream — this is the
// mechanism that lets a client discover brokers "through" the proxy instead
// of being handed the real cluster's internal addresses.
type MetadataBroker struct {
	NodeID int32
	Host   string
	Port   int32
	Rack   *string
}

// MetadataResponse is the subset of the Metadata response (api key 3) the
// proxy needs: just enough of the Brokers array to rewrite advertised
// addresses. ThrottleTimeMs is decoded; everything after the brokers array
// (cluster_id, controller_id, topic metadata) is round-tripped as an opaque
// tail, matching the teacher's approach of only touching the part of the
// frame it has a reason to change.
type MetadataResponse struct {
	ThrottleTimeMs int32 // v1+
	Brokers        []MetadataBroker
	Tail           []byte // remaining bytes, re-emitted verbatim
}

func decodeMetadataResponse(apiVersion int16, r *Reader) (MetadataResponse, error) {
	var resp MetadataResponse
	flexible := IsFlexible(APIKeyMetadata, apiVersion)

	if apiVersion >= 1 {
		tt, err := r.Int32()
		if err != nil {
			return resp, err
		}
		resp.ThrottleTimeMs = tt
	}

	var count int
	if flexible {
		n, err := r.Uvarint()
		if err != nil {
			return resp, err
		}
		if n == 0 {
			resp.Tail = append([]byte(nil), r.Remaining()...)
			return resp, nil
		}
		count = int(n) - 1
	} else {
		n, err := r.Int32()
		if err != nil {
			return resp, err
		}
		count = int(n)
	}

	resp.Brokers = make([]MetadataBroker, 0, count)
	for i := 0; i < count; i++ {
		var b MetadataBroker
		var err error
		if b.NodeID, err = r.Int32(); err != nil {
			return resp, err
		}
		if flexible {
			b.Host, err = r.CompactString()
		} else {
			b.Host, err = r.String()
		}
		if err != nil {
			return resp, err
		}
		if b.Port, err = r.Int32(); err != nil {
			return resp, err
		}
		if apiVersion >= 1 {
			if flexible {
				b.Rack, err = r.CompactNullableString()
			} else {
				b.Rack, err = r.NullableString()
			}
			if err != nil {
				return resp, err
			}
		}
		if flexible {
			if _, err := r.TagBuffer(); err != nil {
				return resp, err
			}
		}
		resp.Brokers = append(resp.Brokers, b)
	}

	resp.Tail = append([]byte(nil), r.Remaining()...)
	return resp, nil
}

func encodeMetadataResponse(w *Writer, apiVersion int16, resp MetadataResponse) {
	flexible := IsFlexible(APIKeyMetadata, apiVersion)

	if apiVersion >= 1 {
		w.Int32(resp.ThrottleTimeMs)
	}

	if flexible {
		w.Uvarint(uint64(len(resp.Brokers)) + 1)
	} else {
		w.Int32(int32(len(resp.Brokers)))
	}
	for _, b := range resp.Brokers {
		w.Int32(b.NodeID)
		if flexible {
			w.CompactString(b.Host)
		} else {
			w.String(b.Host)
		}
		w.Int32(b.Port)
		if apiVersion >= 1 {
			if flexible {
				w.CompactNullableString(b.Rack)
			} else {
				w.NullableString(b.Rack)
			}
		}
		if flexible {
			w.EmptyTagBuffer()
		}
	}
	w.Raw(resp.Tail)
}

// RewriteBrokerAddresses applies advertisement rules to every broker entry
// in a decoded Metadata response in place, returning the mutated response
// for chaining.
func (resp MetadataResponse) RewriteBrokerAddresses(rewrite func(nodeID int32, host string, port int32) (string, int32)) MetadataResponse {
	for i, b := range resp.Brokers {
		h, p := rewrite(b.NodeID, b.Host, b.Port)
		resp.Brokers[i].Host = h
		resp.Brokers[i].Port = p
	}
	return resp
}
