package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/edgekafka/edgekafka/internal/kafka"
	"github.com/rs/zerolog"
)

// AuthLimiter gates SASL authenticate attempts during the AUTH_GATING
// state, backing internal/authlimit's fixed-window attempt counter (kept in
// Redis, or in an in-process map when no Redis is configured). A nil AuthLimiter disables gating: every
// attempt is forwarded upstream and the real broker is the sole arbiter.
type AuthLimiter interface {
	// Allow reports whether another SASL authenticate attempt from
	// remoteAddr may proceed. A non-nil error is treated the same as
	// false — an unreachable rate limiter fails closed, since its entire
	// purpose is bounding authentication attempts and a silent fail-open
	// would defeat that under exactly the conditions (limiter outage) an
	// attacker would want.
	Allow(ctx context.Context, remoteAddr string) (bool, error)
}

const defaultUpstreamDialTimeout = 5 * time.Second

// FrontendHandler drives one downstream connection through the state
// machine in SPEC_FULL.md §4.5: TLS/SNI already resolved by the listener,
// optional SASL gating, lazy upstream connect on the first forward-bound
// request, and a frame relay loop that runs every request through the
// binding's filter chain before handing it to the backend handler.
type FrontendHandler struct {
	AuthLimiter      AuthLimiter
	DialTimeout      time.Duration
	HighWatermark    int64
	LowWatermark     int64
	Log              zerolog.Logger
}

func NewFrontendHandler(log zerolog.Logger) *FrontendHandler {
	return &FrontendHandler{
		DialTimeout:   defaultUpstreamDialTimeout,
		HighWatermark: 4 << 20,
		LowWatermark:  1 << 20,
		Log:           log,
	}
}

// Handle runs the connection to completion (client or upstream close,
// framing error, or auth rejection) and always leaves conn closed before
// returning.
func (fh *FrontendHandler) Handle(ctx context.Context, conn *Connection, binding Binding) error {
	defer conn.Close()

	requiresAuth := len(binding.Cluster.SASLMechanisms) > 0
	conn.SetState(StateAwaitingFirstFrame)

	predicate := fh.decodePredicate(binding, requiresAuth)
	tracker := NewCorrelationTracker()

	toClient := newDirectionalWriter(conn.Downstream, fh.HighWatermark, fh.LowWatermark)
	defer toClient.Close()

	var toUpstream *directionalWriter
	var backendErr = make(chan error, 1)
	backendStarted := false

	first := true
	for {
		payload, err := kafka.ReadFrame(conn.Downstream)
		if err != nil {
			break
		}
		conn.Touch()

		req, err := kafka.DecodeRequest(payload, predicate)
		if err != nil {
			fh.Log.Error().Err(err).Str("cluster", binding.Cluster.ClusterID).Msg("malformed request frame, closing connection")
			return fmt.Errorf("proxy: decode request: %w", err)
		}

		if first {
			first = false
			if requiresAuth {
				conn.SetState(StateAuthGating)
			} else {
				conn.SetState(StateReady)
			}
		}

		if conn.State() == StateAuthGating && req.Header.APIKey == kafka.APIKeySaslAuthenticate && fh.AuthLimiter != nil {
			allowed, lerr := fh.AuthLimiter.Allow(ctx, conn.Downstream.RemoteAddr().String())
			if lerr != nil || !allowed {
				seq := conn.Orderer.Next()
				fh.emit(conn, toClient, seq, kafka.APIKeySaslAuthenticate, req.Header.APIVersion, saslAuthFailureResponse(req))
				conn.SetState(StateClosed)
				return fmt.Errorf("proxy: sasl authenticate rejected by rate limiter")
			}
		}

		seq := conn.Orderer.Next()

		result, err := binding.Cluster.Chain.RunRequest(ctx, &req)
		if err != nil {
			return fmt.Errorf("proxy: filter chain: %w", err)
		}
		if result.ShortCircuit != nil {
			fh.emit(conn, toClient, seq, req.Header.APIKey, req.Header.APIVersion, result.ShortCircuit)
			continue
		}

		if conn.Upstream == nil {
			gating := conn.State() == StateAuthGating
			conn.SetState(StateConnectingUpstream)
			upstream, derr := dialUpstream(ctx, binding.Cluster, fh.DialTimeout)
			if derr != nil {
				return fmt.Errorf("proxy: dial upstream %s: %w", binding.Upstream, derr)
			}
			conn.Upstream = upstream
			if gating {
				// Stay in AUTH_GATING until the backend observes a successful
				// SaslAuthenticate response and moves the connection to READY.
				conn.SetState(StateAuthGating)
			} else {
				conn.SetState(StateRelaying)
			}

			toUpstream = newDirectionalWriter(conn.Upstream, fh.HighWatermark, fh.LowWatermark)
			backend := NewBackendHandler(conn, tracker, binding.Cluster.Chain, toClient, requiresAuth, fh.Log)
			backendStarted = true
			go func() {
				err := backend.Run(ctx)
				backendErr <- err
				// Unblocks the frontend's downstream ReadFrame when the
				// upstream side closes first, so the client side tears
				// down instead of hanging on a read that will never
				// complete.
				conn.Downstream.Close()
			}()
		}

		upstreamID := tracker.Assign(req.Header.CorrelationID, seq, req.Header.APIKey, req.Header.APIVersion)
		req.Header.CorrelationID = upstreamID
		encoded := kafka.EncodeRequest(req)

		toUpstream.WaitForCapacity()
		toUpstream.Enqueue(frameBytes(encoded))
	}

	if toUpstream != nil {
		toUpstream.Close()
	}
	if backendStarted {
		// The backend's read loop is blocked in ReadFrame(conn.Upstream);
		// closing it here (rather than waiting for the deferred conn.Close)
		// is what actually unblocks that read and lets the goroutine exit.
		conn.Upstream.Close()
		<-backendErr
	}
	return nil
}

// emit encodes resp as the sequence-th response and enqueues every response
// the orderer now has ready, in order, to the downstream writer.
func (fh *FrontendHandler) emit(conn *Connection, toClient *directionalWriter, seq uint64, apiKey kafka.APIKey, apiVersion int16, resp *kafka.Response) {
	encoded := kafka.EncodeResponse(*resp, apiKey, apiVersion)
	framed := frameBytes(encoded)
	for _, r := range conn.Orderer.Complete(seq, framed) {
		toClient.Enqueue(r)
	}
}

// decodePredicate builds the DecodePredicate the frame codec uses to decide
// whether a request body must be structurally parsed: filter subscriptions
// decide in general, plus an unconditional decode of the SASL API keys
// whenever the binding requires authentication, so the AUTH_GATING logic
// can always inspect them regardless of which filters are installed.
func (fh *FrontendHandler) decodePredicate(binding Binding, requiresAuth bool) kafka.DecodePredicate {
	return func(h kafka.RequestHeader) bool {
		if requiresAuth && (h.APIKey == kafka.APIKeySaslHandshake || h.APIKey == kafka.APIKeySaslAuthenticate) {
			return true
		}
		return binding.Cluster.Chain.WantsRequestBody(h)
	}
}

// dialUpstream connects to the virtual cluster's upstream bootstrap target,
// over TLS when the binding configures it.
func dialUpstream(ctx context.Context, cluster *VirtualCluster, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	if cluster.UpstreamTLS != nil {
		return tls.DialWithDialer(&d, "tcp", cluster.UpstreamBootstrap, cluster.UpstreamTLS)
	}
	return d.DialContext(ctx, "tcp", cluster.UpstreamBootstrap)
}

// saslAuthFailureResponse builds a locally answered SaslAuthenticate
// failure, used when the auth limiter rejects an attempt before it ever
// reaches the upstream broker.
func saslAuthFailureResponse(req kafka.Request) *kafka.Response {
	msg := "authentication attempt rate limit exceeded"
	hv := kafka.ResponseHeaderVersionFor(kafka.APIKeySaslAuthenticate, req.Header.APIVersion)
	return &kafka.Response{
		Header: kafka.ResponseHeader{
			CorrelationID: req.Header.CorrelationID,
			HeaderVersion: hv,
		},
		HeaderVersion: hv,
		Body: kafka.SaslAuthenticateResponse{
			ErrorCode:    kafka.ErrSaslAuthenticationFailed,
			ErrorMessage: &msg,
		},
	}
}
