package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/matgreaves/run"
	"github.com/rs/zerolog"
)

// Listener accepts connections on one address and dispatches each to the
// FrontendHandler after resolving which virtual cluster it belongs to.
// Grounded on the teacher's Forwarder (internal/server/proxy/forwarder.go,
// tcp.go): a run.Runner wrapping a plain accept loop, one goroutine per
// connection. Unlike the teacher's single fixed target, resolution here
// happens per connection — by SNI for a TLS listener, or by local address
// alone for a plaintext one — since one Listener can front several virtual
// clusters.
type Listener struct {
	Addr     string
	Listener net.Listener // pre-opened listener; avoids a bind-time TOCTOU, same as the teacher's Forwarder.Listener
	BaseTLS  *tls.Config  // non-nil enables TLS; per-connection config is resolved via SNI
	Resolver *Resolver
	Frontend *FrontendHandler
	Log      zerolog.Logger
}

// Runner returns a run.Runner that listens and dispatches connections until
// ctx is cancelled.
func (l *Listener) Runner() run.Runner {
	return run.Func(func(ctx context.Context) error {
		return l.run(ctx)
	})
}

func (l *Listener) getListener() (net.Listener, error) {
	if l.Listener != nil {
		return l.Listener, nil
	}
	return net.Listen("tcp", l.Addr)
}

func (l *Listener) run(ctx context.Context) error {
	ln, err := l.getListener()
	if err != nil {
		return fmt.Errorf("proxy: listen %s: %w", l.Addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proxy: accept on %s: %w", l.Addr, err)
		}
		go l.handleConn(ctx, conn)
	}
}

// handleConn resolves the virtual cluster binding for conn and, on success,
// builds a Connection and dispatches to the FrontendHandler. An unresolvable
// endpoint (boundary scenario 6) closes the connection immediately — during
// the TLS handshake itself, if SNI-based, so no frame is ever read off a
// socket with nowhere to route to.
func (l *Listener) handleConn(ctx context.Context, raw net.Conn) {
	localAddr := raw.LocalAddr().String()

	if l.BaseTLS == nil {
		binding, err := l.Resolver.Resolve(localAddr, "")
		if err != nil {
			l.Log.Warn().Err(err).Str("local", localAddr).Msg("no binding for plaintext listener, closing connection")
			raw.Close()
			return
		}
		l.dispatch(ctx, raw, binding)
		return
	}

	var resolved *Binding
	var resolveErr error
	cfg := l.BaseTLS.Clone()
	cfg.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		b, err := l.Resolver.Resolve(localAddr, hello.ServerName)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		resolved = &b
		if b.Cluster.DownstreamTLS != nil {
			return b.Cluster.DownstreamTLS, nil
		}
		return l.BaseTLS, nil
	}

	tlsConn := tls.Server(raw, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		if resolveErr != nil {
			l.Log.Warn().Err(resolveErr).Str("local", localAddr).Msg("no binding for TLS SNI, closing connection during handshake")
		} else {
			l.Log.Warn().Err(err).Str("local", localAddr).Msg("TLS handshake failed")
		}
		raw.Close()
		return
	}
	if resolved == nil {
		// GetConfigForClient wasn't invoked (e.g. TLS 1.2 resumption); fall
		// back to resolving by local address and the server name the
		// completed handshake recorded.
		b, err := l.Resolver.Resolve(localAddr, tlsConn.ConnectionState().ServerName)
		if err != nil {
			l.Log.Warn().Err(err).Str("local", localAddr).Msg("no binding after TLS handshake, closing connection")
			tlsConn.Close()
			return
		}
		resolved = &b
	}
	l.dispatch(ctx, tlsConn, *resolved)
}

func (l *Listener) dispatch(ctx context.Context, conn net.Conn, binding Binding) {
	proxyConn := NewConnection(binding.Cluster.ClusterID, conn, binding.Cluster.IdleTimeout, func() {
		conn.Close()
	})
	if err := l.Frontend.Handle(ctx, proxyConn, binding); err != nil {
		l.Log.Debug().Err(err).Str("cluster", binding.Cluster.ClusterID).Msg("connection closed")
	}
}
