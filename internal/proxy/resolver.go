package proxy

import (
	"fmt"
	"sync"
)

// endpointKey identifies a listener endpoint a binding is registered under.
// SNI is empty for plaintext listeners, where routing happens on
// channel-active instead of inside the TLS handshake.
type endpointKey struct {
	LocalAddr string
	SNI       string
}

// Resolver maps (local listener address, SNI hostname) to a Binding. It is
// read-mostly: resolution runs on every new connection's hot path, while
// reconfiguration (a full table swap) is rare, so lookups take only a read
// lock — generalized from the teacher's single-mutex
// `envs map[string]*envInstance` since this table's hot path matters more
// than its write path.
type Resolver struct {
	mu       sync.RWMutex
	bindings map[endpointKey]Binding
}

// NewResolver builds an empty Resolver; use Publish to install bindings.
func NewResolver() *Resolver {
	return &Resolver{bindings: make(map[endpointKey]Binding)}
}

// Publish atomically replaces the entire binding table. Callers build the
// full desired set (e.g. from the admin plane's PublishVirtualClusters) and
// pass it here rather than mutating entries incrementally, so a lookup
// never observes a half-updated table.
func (r *Resolver) Publish(bindings map[endpointKey]Binding) {
	r.mu.Lock()
	r.bindings = bindings
	r.mu.Unlock()
}

// Entry is the exported form of one table row, for callers outside this
// package (internal/admin's PublishVirtualClusters RPC) that can't name the
// unexported endpointKey type directly.
type Entry struct {
	LocalAddr string
	SNI       string
	Binding   Binding
}

// PublishEntries atomically replaces the binding table from a flat list of
// entries, the external-caller-friendly form of Publish.
func (r *Resolver) PublishEntries(entries []Entry) {
	bindings := make(map[endpointKey]Binding, len(entries))
	for _, e := range entries {
		bindings[endpointKey{LocalAddr: e.LocalAddr, SNI: e.SNI}] = e.Binding
	}
	r.Publish(bindings)
}

// Bind registers (or replaces) a single binding without waiting for a full
// Publish round trip — the common case during local startup from static
// config, where every virtual cluster's bindings are known up front.
func (r *Resolver) Bind(localAddr, sni string, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindings == nil {
		r.bindings = make(map[endpointKey]Binding)
	}
	r.bindings[endpointKey{LocalAddr: localAddr, SNI: sni}] = b
}

// ErrNoBinding is returned by Resolve when no virtual cluster answers for
// the given endpoint/SNI pair.
type ErrNoBinding struct {
	LocalAddr string
	SNI       string
}

func (e *ErrNoBinding) Error() string {
	if e.SNI == "" {
		return fmt.Sprintf("proxy: no binding for endpoint %s", e.LocalAddr)
	}
	return fmt.Sprintf("proxy: no binding for endpoint %s sni %q", e.LocalAddr, e.SNI)
}

// Resolve looks up the binding for a connection accepted on localAddr, with
// sni set for TLS connections that have completed the ClientHello
// inspection and empty for plaintext connections. A miss is always an
// error: an unresolved connection is closed by the caller, never forwarded
// to a default.
func (r *Resolver) Resolve(localAddr, sni string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.bindings[endpointKey{LocalAddr: localAddr, SNI: sni}]; ok {
		return b, nil
	}
	return Binding{}, &ErrNoBinding{LocalAddr: localAddr, SNI: sni}
}
