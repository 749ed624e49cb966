package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgekafka/edgekafka/internal/filter"
	"github.com/edgekafka/edgekafka/internal/kafka"
	"github.com/rs/zerolog"
)

// correlationInfo is what the backend side needs to recover once an
// upstream response arrives carrying only the upstream-issued correlation
// id: the original downstream id to rewrite the response header back to,
// the response-orderer sequence number so the response lands in the right
// slot, and the (apiKey, apiVersion) pair a response frame never carries
// itself.
type correlationInfo struct {
	downstreamID int32
	seq          uint64
	apiKey       kafka.APIKey
	apiVersion   int16
}

// CorrelationTracker rewrites downstream-issued correlation ids onto a
// private upstream id space and tracks enough per-pending-request state to
// reverse the rewrite and recover the api key/version when the matching
// response arrives. Generalizes the teacher's correlationTracker
// (internal/server/proxy/kafka.go), which only recorded (apiKey, apiVersion)
// under the client's own id to decide whether a response needed rewriting;
// this proxy mints its own ids too, since multiple virtual clusters and
// filter-originated short-circuits should never let a client-chosen id
// collide with another in-flight request's.
type CorrelationTracker struct {
	mu      sync.Mutex
	next    int32
	pending map[int32]correlationInfo
}

func NewCorrelationTracker() *CorrelationTracker {
	return &CorrelationTracker{pending: make(map[int32]correlationInfo)}
}

// Assign reserves a fresh upstream correlation id for one downstream
// request and records what's needed to resolve its response.
func (t *CorrelationTracker) Assign(downstreamID int32, seq uint64, apiKey kafka.APIKey, apiVersion int16) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.pending[id] = correlationInfo{downstreamID: downstreamID, seq: seq, apiKey: apiKey, apiVersion: apiVersion}
	return id
}

// Resolve looks up and consumes the tracked state for an upstream
// correlation id, once — a correlation id is single-use, mirroring the
// teacher's lookup-deletes semantics.
func (t *CorrelationTracker) Resolve(upstreamID int32) (correlationInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.pending[upstreamID]
	if ok {
		delete(t.pending, upstreamID)
	}
	return info, ok
}

// BackendHandler owns the upstream connection's read loop: it decodes each
// response frame just enough to recover its correlation id, resolves that
// id back to the original downstream request, runs the response through
// the filter chain, rewrites the correlation id back, and hands the
// re-encoded frame to the response orderer so it leaves in request order.
type BackendHandler struct {
	conn     *Connection
	tracker  *CorrelationTracker
	chain    *filter.Chain
	toClient *directionalWriter
	log      zerolog.Logger

	// forceAuthDecode is set when the binding requires SASL, so
	// SaslAuthenticate responses are always decoded enough to observe the
	// error code and drive the AUTH_GATING → READY transition, independent
	// of whether any installed filter subscribes to that API key.
	forceAuthDecode bool
}

func NewBackendHandler(conn *Connection, tracker *CorrelationTracker, chain *filter.Chain, toClient *directionalWriter, forceAuthDecode bool, log zerolog.Logger) *BackendHandler {
	return &BackendHandler{conn: conn, tracker: tracker, chain: chain, toClient: toClient, forceAuthDecode: forceAuthDecode, log: log}
}

// Run reads frames from the upstream connection until it closes or a
// framing error occurs; framing errors are fatal for the connection per
// §7 kind 4.
func (b *BackendHandler) Run(ctx context.Context) error {
	for {
		payload, err := kafka.ReadFrame(b.conn.Upstream)
		if err != nil {
			return err
		}
		b.conn.Touch()

		if err := b.handleFrame(ctx, payload); err != nil {
			b.log.Error().Err(err).Str("cluster", b.conn.ClusterID).Msg("malformed response frame, closing connection")
			return err
		}
	}
}

func (b *BackendHandler) handleFrame(ctx context.Context, payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("proxy: response frame shorter than a correlation id (%d bytes)", len(payload))
	}
	upstreamID := int32(payload[0])<<24 | int32(payload[1])<<16 | int32(payload[2])<<8 | int32(payload[3])

	info, ok := b.tracker.Resolve(upstreamID)
	if !ok {
		return fmt.Errorf("proxy: response for unknown correlation id %d", upstreamID)
	}

	headerVersion := kafka.ResponseHeaderVersionFor(info.apiKey, info.apiVersion)
	watchAuth := b.forceAuthDecode && info.apiKey == kafka.APIKeySaslAuthenticate
	decodeBody := b.chain.WantsResponseBody(info.apiKey) || watchAuth

	resp, err := kafka.DecodeResponse(payload, headerVersion, info.apiKey, info.apiVersion, decodeBody)
	if err != nil {
		return fmt.Errorf("decoding response apiKey=%d: %w", info.apiKey, err)
	}
	resp.Header.CorrelationID = info.downstreamID

	if b.chain.WantsResponseBody(info.apiKey) {
		result, err := b.chain.RunResponse(ctx, &resp)
		if err != nil {
			return fmt.Errorf("filter chain: %w", err)
		}
		if result.ShortCircuit != nil {
			resp = *result.ShortCircuit
			resp.Header.CorrelationID = info.downstreamID
		}
	}

	if watchAuth && b.conn.State() == StateAuthGating {
		if authResp, ok := resp.Body.(kafka.SaslAuthenticateResponse); ok && authResp.ErrorCode == kafka.ErrNone {
			b.conn.SetState(StateReady)
		}
	}

	encoded := kafka.EncodeResponse(resp, info.apiKey, info.apiVersion)
	framed := frameBytes(encoded)

	ready := b.conn.Orderer.Complete(info.seq, framed)
	for _, r := range ready {
		b.toClient.Enqueue(r)
	}
	return nil
}

// frameBytes prefixes payload with its big-endian uint32 length, matching
// kafka.WriteFrame's wire form without needing an io.Writer to hand it to
// immediately — the response orderer buffers frames before they're ready to
// write.
func frameBytes(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	out[0] = byte(len(payload) >> 24)
	out[1] = byte(len(payload) >> 16)
	out[2] = byte(len(payload) >> 8)
	out[3] = byte(len(payload))
	copy(out[4:], payload)
	return out
}
