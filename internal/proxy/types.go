// Package proxy implements the per-connection data path: accepting
// downstream connections, resolving them to a virtual cluster, driving the
// frontend/backend connection state machines, and relaying frames through
// the installed filter chain in request order.
package proxy

import (
	"crypto/tls"
	"time"

	"github.com/edgekafka/edgekafka/internal/filter"
)

// BrokerAddressRule rewrites one broker's advertised host/port in Metadata
// responses, so a client discovers brokers "through" the proxy rather than
// being handed the real cluster's internal addresses.
type BrokerAddressRule struct {
	NodeID         int32
	AdvertisedHost string
	AdvertisedPort int32
}

// VirtualCluster is a configured upstream identity: an upstream bootstrap
// target, optional TLS material for either side, and the filter chain every
// connection bound to it runs through. Lifetime: process start to process
// stop, replaced wholesale on reconfiguration rather than mutated in place.
type VirtualCluster struct {
	// ClusterID is the stable name used as the telemetry/audit label,
	// distinct from the transient runtime address a connection resolves to.
	ClusterID string
	Name      string

	UpstreamBootstrap string
	DownstreamTLS     *tls.Config
	UpstreamTLS       *tls.Config

	LogNetwork bool
	LogFrames  bool

	BrokerAddressRules []BrokerAddressRule

	// Chain is built once per VirtualCluster and shared by every connection
	// bound to it; Chain is itself safe for concurrent use.
	Chain *filter.Chain

	// SASLMechanisms lists the mechanisms AUTH_GATING accepts for this
	// cluster. Empty means no authentication is required and the frontend
	// handler skips AUTH_GATING entirely.
	SASLMechanisms []string

	// IdleTimeout closes a RELAYING connection that has seen no frame in
	// this long. Zero disables idle closure.
	IdleTimeout time.Duration
}

// Binding is the resolution of one downstream connection to a virtual
// cluster plus the concrete upstream address to dial. Immutable once
// returned by the resolver; re-resolved only on reconfiguration, never
// mutated under a connection's feet.
type Binding struct {
	Cluster  *VirtualCluster
	Upstream string
}
