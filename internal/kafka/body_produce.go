package kafka

// ProducePartitionData is one partition's record batches within a Produce
// request. Records is the raw record-batch blob exactly as it appeared on
// the wire; the encryption filter decodes it with DecodeRecordBatches only
// when it actually needs to rewrite record values, keeping this layer free
// of any opinion about what's inside a batch.
type ProducePartitionData struct {
	Index   int32
	Records []byte
}

// ProduceTopicData is one topic's partitions within a Produce request.
type ProduceTopicData struct {
	Name       string
	Partitions []ProducePartitionData
}

// ProduceRequest (api key 0).
type ProduceRequest struct {
	TransactionalID *string // v3+
	Acks            int16
	TimeoutMs       int32
	Topics          []ProduceTopicData
}

// ProducePartitionResponse is one partition's result within a Produce response.
type ProducePartitionResponse struct {
	Index           int32
	ErrorCode       int16
	BaseOffset      int64
	LogAppendTimeMs int64 // v2+, -1 if unset
	LogStartOffset  int64 // v5+
}

// ProduceTopicResponse is one topic's partition results within a Produce response.
type ProduceTopicResponse struct {
	Name       string
	Partitions []ProducePartitionResponse
}

// ProduceResponse (api key 0).
type ProduceResponse struct {
	Topics         []ProduceTopicResponse
	ThrottleTimeMs int32 // v1+
}

func decodeProduceRequest(apiVersion int16, r *Reader) (ProduceRequest, error) {
	var req ProduceRequest
	flexible := IsFlexible(APIKeyProduce, apiVersion)

	if apiVersion >= 3 {
		var err error
		if flexible {
			req.TransactionalID, err = r.CompactNullableString()
		} else {
			req.TransactionalID, err = r.NullableString()
		}
		if err != nil {
			return req, err
		}
	}

	var err error
	if req.Acks, err = r.Int16(); err != nil {
		return req, err
	}
	if req.TimeoutMs, err = r.Int32(); err != nil {
		return req, err
	}

	topicCount, err := arrayLen(r, flexible)
	if err != nil {
		return req, err
	}
	req.Topics = make([]ProduceTopicData, 0, topicCount)
	for i := 0; i < topicCount; i++ {
		var t ProduceTopicData
		if flexible {
			t.Name, err = r.CompactString()
		} else {
			t.Name, err = r.String()
		}
		if err != nil {
			return req, err
		}

		partCount, err := arrayLen(r, flexible)
		if err != nil {
			return req, err
		}
		t.Partitions = make([]ProducePartitionData, 0, partCount)
		for j := 0; j < partCount; j++ {
			var p ProducePartitionData
			if p.Index, err = r.Int32(); err != nil {
				return req, err
			}
			if flexible {
				p.Records, err = r.CompactBytes()
			} else {
				var n int32
				if n, err = r.Int32(); err == nil && n >= 0 {
					p.Records, err = r.Bytes(int(n))
				}
			}
			if err != nil {
				return req, err
			}
			if flexible {
				if _, err := r.TagBuffer(); err != nil {
					return req, err
				}
			}
			t.Partitions = append(t.Partitions, p)
		}
		if flexible {
			if _, err := r.TagBuffer(); err != nil {
				return req, err
			}
		}
		req.Topics = append(req.Topics, t)
	}
	if flexible {
		if _, err := r.TagBuffer(); err != nil {
			return req, err
		}
	}
	return req, nil
}

func encodeProduceRequest(w *Writer, apiVersion int16, req ProduceRequest) {
	flexible := IsFlexible(APIKeyProduce, apiVersion)

	if apiVersion >= 3 {
		if flexible {
			w.CompactNullableString(req.TransactionalID)
		} else {
			w.NullableString(req.TransactionalID)
		}
	}
	w.Int16(req.Acks)
	w.Int32(req.TimeoutMs)

	writeArrayLen(w, flexible, len(req.Topics))
	for _, t := range req.Topics {
		if flexible {
			w.CompactString(t.Name)
		} else {
			w.String(t.Name)
		}
		writeArrayLen(w, flexible, len(t.Partitions))
		for _, p := range t.Partitions {
			w.Int32(p.Index)
			if flexible {
				w.CompactBytes(p.Records)
			} else {
				w.Int32(int32(len(p.Records)))
				w.Raw(p.Records)
			}
			if flexible {
				w.EmptyTagBuffer()
			}
		}
		if flexible {
			w.EmptyTagBuffer()
		}
	}
	if flexible {
		w.EmptyTagBuffer()
	}
}

func decodeProduceResponse(apiVersion int16, r *Reader) (ProduceResponse, error) {
	var resp ProduceResponse
	flexible := IsFlexible(APIKeyProduce, apiVersion)

	topicCount, err := arrayLen(r, flexible)
	if err != nil {
		return resp, err
	}
	resp.Topics = make([]ProduceTopicResponse, 0, topicCount)
	for i := 0; i < topicCount; i++ {
		var t ProduceTopicResponse
		if flexible {
			t.Name, err = r.CompactString()
		} else {
			t.Name, err = r.String()
		}
		if err != nil {
			return resp, err
		}

		partCount, err := arrayLen(r, flexible)
		if err != nil {
			return resp, err
		}
		t.Partitions = make([]ProducePartitionResponse, 0, partCount)
		for j := 0; j < partCount; j++ {
			var p ProducePartitionResponse
			if p.Index, err = r.Int32(); err != nil {
				return resp, err
			}
			if p.ErrorCode, err = r.Int16(); err != nil {
				return resp, err
			}
			if p.BaseOffset, err = r.Int64(); err != nil {
				return resp, err
			}
			if apiVersion >= 2 {
				if p.LogAppendTimeMs, err = r.Int64(); err != nil {
					return resp, err
				}
			}
			if apiVersion >= 5 {
				if p.LogStartOffset, err = r.Int64(); err != nil {
					return resp, err
				}
			}
			if flexible {
				if _, err := r.TagBuffer(); err != nil {
					return resp, err
				}
			}
			t.Partitions = append(t.Partitions, p)
		}
		if flexible {
			if _, err := r.TagBuffer(); err != nil {
				return resp, err
			}
		}
		resp.Topics = append(resp.Topics, t)
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

func encodeProduceResponse(w *Writer, apiVersion int16, resp ProduceResponse) {
	flexible := IsFlexible(APIKeyProduce, apiVersion)

	writeArrayLen(w, flexible, len(resp.Topics))
	for _, t := range resp.Topics {
		if flexible {
			w.CompactString(t.Name)
		} else {
			w.String(t.Name)
		}
		writeArrayLen(w, flexible, len(t.Partitions))
		for _, p := range t.Partitions {
			w.Int32(p.Index)
			w.Int16(p.ErrorCode)
			w.Int64(p.BaseOffset)
			if apiVersion >= 2 {
				w.Int64(p.LogAppendTimeMs)
			}
			if apiVersion >= 5 {
				w.Int64(p.LogStartOffset)
			}
			if flexible {
				w.EmptyTagBuffer()
			}
		}
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

// arrayLen reads a classic int32 array length, or (for flexible versions) a
// compact array length (uvarint(len+1), 0 meaning null which this codec
// treats as zero-length since Kafka never emits a null array here).
func arrayLen(r *Reader, flexible bool) (int, error) {
	if !flexible {
		n, err := r.Int32()
		return int(n), err
	}
	n, err := r.Uvarint()
	if err != nil || n == 0 {
		return 0, err
	}
	return int(n) - 1, nil
}

func writeArrayLen(w *Writer, flexible bool, n int) {
	if !flexible {
		w.Int32(int32(n))
		return
	}
	w.Uvarint(uint64(n) + 1)
}
