package proxy

import "sync"

// ResponseOrderer guarantees P5: responses are written to a downstream
// client in the order their requests arrived, even though the filter chain
// and the upstream broker may complete them out of order. Each accepted
// request is assigned a monotonically increasing sequence number; Complete
// buffers an out-of-order arrival and flushes contiguously from
// nextToEmit, so the slice it returns only ever holds ready responses in
// sequence order.
type ResponseOrderer struct {
	mu          sync.Mutex
	nextToIssue uint64
	nextToEmit  uint64
	pending     map[uint64][]byte
}

// NewResponseOrderer builds an orderer for one connection. Not safe to
// share across connections — sequence numbers are connection-local.
func NewResponseOrderer() *ResponseOrderer {
	return &ResponseOrderer{pending: make(map[uint64][]byte)}
}

// Next reserves the sequence number for the request that was just read off
// the wire. Called once per request, strictly in read order, from the
// connection's single reader goroutine.
func (o *ResponseOrderer) Next() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := o.nextToIssue
	o.nextToIssue++
	return seq
}

// Complete records the encoded response bytes for seq and returns every
// response now ready to flush, in order, removing them from the pending
// set. The slice is nil when seq arrived out of order and nothing is ready
// to flush yet.
func (o *ResponseOrderer) Complete(seq uint64, encoded []byte) [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[seq] = encoded

	var ready [][]byte
	for {
		b, ok := o.pending[o.nextToEmit]
		if !ok {
			break
		}
		ready = append(ready, b)
		delete(o.pending, o.nextToEmit)
		o.nextToEmit++
	}
	return ready
}

// Pending reports how many responses are buffered waiting on an earlier
// one to complete — surfaced as the response-orderer queue-depth metric
// (§4.11).
func (o *ResponseOrderer) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
