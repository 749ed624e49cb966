package kafka

// FetchPartition is one partition's fetch request within a Fetch request.
type FetchPartition struct {
	Index              int32
	CurrentLeaderEpoch int32 // v9+
	FetchOffset        int64
	LastFetchedEpoch   int32 // v12+
	LogStartOffset     int64 // v5+
	PartitionMaxBytes  int32
}

// FetchTopic is one topic's partitions within a Fetch request.
type FetchTopic struct {
	Name       string
	Partitions []FetchPartition
}

// FetchRequest (api key 1). ForgottenTopics (incremental fetch sessions,
// v7+) is decoded but unused by anything in this proxy; it is carried so a
// full round-trip re-encode is byte-faithful.
type FetchRequest struct {
	ReplicaID       int32
	MaxWaitMs       int32
	MinBytes        int32
	MaxBytes        int32 // v3+
	IsolationLevel  int8  // v4+
	SessionID       int32 // v7+
	SessionEpoch    int32 // v7+
	Topics          []FetchTopic
	ForgottenTopics []ForgottenTopic // v7+
	RackID          string           // v11+
}

// ForgottenTopic is one entry in a Fetch request's forgotten-topics array.
type ForgottenTopic struct {
	Name       string
	Partitions []int32
}

// FetchPartitionResponse is one partition's result within a Fetch response.
// Records is the raw record-batch blob; like Produce, decoding into
// individual batches is left to whichever filter actually needs to look
// inside (the encryption filter, to decrypt parcel-wrapped values).
type FetchPartitionResponse struct {
	Index                int32
	ErrorCode            int16
	HighWatermark        int64
	LastStableOffset     int64 // v4+
	LogStartOffset       int64 // v5+
	AbortedTransactions  []AbortedTransaction
	PreferredReadReplica int32 // v11+
	Records              []byte
}

// AbortedTransaction is one entry in a Fetch response partition's
// aborted-transactions array (v4+), needed for read-committed consumers.
type AbortedTransaction struct {
	ProducerID  int64
	FirstOffset int64
}

// FetchTopicResponse is one topic's partition results within a Fetch response.
type FetchTopicResponse struct {
	Name       string
	Partitions []FetchPartitionResponse
}

// FetchResponse (api key 1).
type FetchResponse struct {
	ThrottleTimeMs int32 // v1+
	ErrorCode      int16 // v7+
	SessionID      int32 // v7+
	Topics         []FetchTopicResponse
}

func decodeFetchRequest(apiVersion int16, r *Reader) (FetchRequest, error) {
	var req FetchRequest
	flexible := IsFlexible(APIKeyFetch, apiVersion)

	var err error
	if req.ReplicaID, err = r.Int32(); err != nil {
		return req, err
	}
	if req.MaxWaitMs, err = r.Int32(); err != nil {
		return req, err
	}
	if req.MinBytes, err = r.Int32(); err != nil {
		return req, err
	}
	if apiVersion >= 3 {
		if req.MaxBytes, err = r.Int32(); err != nil {
			return req, err
		}
	}
	if apiVersion >= 4 {
		isoLevel, err := r.Int8()
		if err != nil {
			return req, err
		}
		req.IsolationLevel = isoLevel
	}
	if apiVersion >= 7 {
		if req.SessionID, err = r.Int32(); err != nil {
			return req, err
		}
		if req.SessionEpoch, err = r.Int32(); err != nil {
			return req, err
		}
	}

	topicCount, err := arrayLen(r, flexible)
	if err != nil {
		return req, err
	}
	req.Topics = make([]FetchTopic, 0, topicCount)
	for i := 0; i < topicCount; i++ {
		var t FetchTopic
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
		t.Partitions = make([]FetchPartition, 0, partCount)
		for j := 0; j < partCount; j++ {
			var p FetchPartition
			if p.Index, err = r.Int32(); err != nil {
				return req, err
			}
			if apiVersion >= 9 {
				if p.CurrentLeaderEpoch, err = r.Int32(); err != nil {
					return req, err
				}
			}
			if p.FetchOffset, err = r.Int64(); err != nil {
				return req, err
			}
			if apiVersion >= 12 {
				if p.LastFetchedEpoch, err = r.Int32(); err != nil {
					return req, err
				}
			}
			if apiVersion >= 5 {
				if p.LogStartOffset, err = r.Int64(); err != nil {
					return req, err
				}
			}
			if p.PartitionMaxBytes, err = r.Int32(); err != nil {
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

	if apiVersion >= 7 {
		forgottenCount, err := arrayLen(r, flexible)
		if err != nil {
			return req, err
		}
		req.ForgottenTopics = make([]ForgottenTopic, 0, forgottenCount)
		for i := 0; i < forgottenCount; i++ {
			var ft ForgottenTopic
			if flexible {
				ft.Name, err = r.CompactString()
			} else {
				ft.Name, err = r.String()
			}
			if err != nil {
				return req, err
			}
			n, err := arrayLen(r, flexible)
			if err != nil {
				return req, err
			}
			ft.Partitions = make([]int32, n)
			for k := range ft.Partitions {
				if ft.Partitions[k], err = r.Int32(); err != nil {
					return req, err
				}
			}
			if flexible {
				if _, err := r.TagBuffer(); err != nil {
					return req, err
				}
			}
			req.ForgottenTopics = append(req.ForgottenTopics, ft)
		}
	}

	if apiVersion >= 11 {
		if flexible {
			req.RackID, err = r.CompactString()
		} else {
			req.RackID, err = r.String()
		}
		if err != nil {
			return req, err
		}
	}

	if flexible {
		if _, err := r.TagBuffer(); err != nil {
			return req, err
		}
	}
	return req, nil
}

func encodeFetchRequest(w *Writer, apiVersion int16, req FetchRequest) {
	flexible := IsFlexible(APIKeyFetch, apiVersion)

	w.Int32(req.ReplicaID)
	w.Int32(req.MaxWaitMs)
	w.Int32(req.MinBytes)
	if apiVersion >= 3 {
		w.Int32(req.MaxBytes)
	}
	if apiVersion >= 4 {
		w.Int8(req.IsolationLevel)
	}
	if apiVersion >= 7 {
		w.Int32(req.SessionID)
		w.Int32(req.SessionEpoch)
	}

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
			if apiVersion >= 9 {
				w.Int32(p.CurrentLeaderEpoch)
			}
			w.Int64(p.FetchOffset)
			if apiVersion >= 12 {
				w.Int32(p.LastFetchedEpoch)
			}
			if apiVersion >= 5 {
				w.Int64(p.LogStartOffset)
			}
			w.Int32(p.PartitionMaxBytes)
			if flexible {
				w.EmptyTagBuffer()
			}
		}
		if flexible {
			w.EmptyTagBuffer()
		}
	}

	if apiVersion >= 7 {
		writeArrayLen(w, flexible, len(req.ForgottenTopics))
		for _, ft := range req.ForgottenTopics {
			if flexible {
				w.CompactString(ft.Name)
			} else {
				w.String(ft.Name)
			}
			writeArrayLen(w, flexible, len(ft.Partitions))
			for _, idx := range ft.Partitions {
				w.Int32(idx)
			}
			if flexible {
				w.EmptyTagBuffer()
			}
		}
	}

	if apiVersion >= 11 {
		if flexible {
			w.CompactString(req.RackID)
		} else {
			w.String(req.RackID)
		}
	}

	if flexible {
		w.EmptyTagBuffer()
	}
}

func decodeFetchResponse(apiVersion int16, r *Reader) (FetchResponse, error) {
	var resp FetchResponse
	flexible := IsFlexible(APIKeyFetch, apiVersion)

	var err error
	if apiVersion >= 1 {
		if resp.ThrottleTimeMs, err = r.Int32(); err != nil {
			return resp, err
		}
	}
	if apiVersion >= 7 {
		if resp.ErrorCode, err = r.Int16(); err != nil {
			return resp, err
		}
		if resp.SessionID, err = r.Int32(); err != nil {
			return resp, err
		}
	}

	topicCount, err := arrayLen(r, flexible)
	if err != nil {
		return resp, err
	}
	resp.Topics = make([]FetchTopicResponse, 0, topicCount)
	for i := 0; i < topicCount; i++ {
		var t FetchTopicResponse
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
		t.Partitions = make([]FetchPartitionResponse, 0, partCount)
		for j := 0; j < partCount; j++ {
			var p FetchPartitionResponse
			if p.Index, err = r.Int32(); err != nil {
				return resp, err
			}
			if p.ErrorCode, err = r.Int16(); err != nil {
				return resp, err
			}
			if p.HighWatermark, err = r.Int64(); err != nil {
				return resp, err
			}
			if apiVersion >= 4 {
				if p.LastStableOffset, err = r.Int64(); err != nil {
					return resp, err
				}
			}
			if apiVersion >= 5 {
				if p.LogStartOffset, err = r.Int64(); err != nil {
					return resp, err
				}
			}
			if apiVersion >= 4 {
				abortedCount, err := arrayLen(r, flexible)
				if err != nil {
					return resp, err
				}
				p.AbortedTransactions = make([]AbortedTransaction, abortedCount)
				for k := range p.AbortedTransactions {
					var at AbortedTransaction
					if at.ProducerID, err = r.Int64(); err != nil {
						return resp, err
					}
					if at.FirstOffset, err = r.Int64(); err != nil {
						return resp, err
					}
					if flexible {
						if _, err := r.TagBuffer(); err != nil {
							return resp, err
						}
					}
					p.AbortedTransactions[k] = at
				}
			}
			if apiVersion >= 11 {
				if p.PreferredReadReplica, err = r.Int32(); err != nil {
					return resp, err
				}
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
				return resp, err
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

	if flexible {
		if _, err := r.TagBuffer(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func encodeFetchResponse(w *Writer, apiVersion int16, resp FetchResponse) {
	flexible := IsFlexible(APIKeyFetch, apiVersion)

	if apiVersion >= 1 {
		w.Int32(resp.ThrottleTimeMs)
	}
	if apiVersion >= 7 {
		w.Int16(resp.ErrorCode)
		w.Int32(resp.SessionID)
	}

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
			w.Int64(p.HighWatermark)
			if apiVersion >= 4 {
				w.Int64(p.LastStableOffset)
			}
			if apiVersion >= 5 {
				w.Int64(p.LogStartOffset)
			}
			if apiVersion >= 4 {
				writeArrayLen(w, flexible, len(p.AbortedTransactions))
				for _, at := range p.AbortedTransactions {
					w.Int64(at.ProducerID)
					w.Int64(at.FirstOffset)
					if flexible {
						w.EmptyTagBuffer()
					}
				}
			}
			if apiVersion >= 11 {
				w.Int32(p.PreferredReadReplica)
			}
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
