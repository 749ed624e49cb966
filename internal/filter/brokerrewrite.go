package filter

import (
	"context"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

// BrokerAddressRule maps one upstream broker's advertised address to the
// address clients of this virtual cluster should dial instead — normally
// the proxy's own listen address. Mirrors proxy.BrokerAddressRule; kept as
// its own type here so the filter package doesn't import internal/proxy.
type BrokerAddressRule struct {
	NodeID         int32
	AdvertisedHost string
	AdvertisedPort int32
}

// BrokerRewriteFilter rewrites broker host/port entries in Metadata
// responses so a client that discovers a broker via metadata dials back
// through this proxy rather than directly to the real cluster. Grounded on
// the teacher's rewriteMetadataResponse (internal/server/proxy/kafka.go),
// generalized from a single fixed (host, port) substitution to a per-node
// rule table, since one virtual cluster can front many brokers.
type BrokerRewriteFilter struct {
	Rules []BrokerAddressRule
}

func (f *BrokerRewriteFilter) Name() string { return "builtin.brokerrewrite" }

func (f *BrokerRewriteFilter) APIKeys() []kafka.APIKey {
	return []kafka.APIKey{kafka.APIKeyMetadata}
}

func (f *BrokerRewriteFilter) OnResponse(ctx context.Context, resp *kafka.Response) (FilterResult, error) {
	meta, ok := resp.Body.(kafka.MetadataResponse)
	if !ok {
		return FilterResult{}, nil
	}

	byNode := make(map[int32]BrokerAddressRule, len(f.Rules))
	for _, r := range f.Rules {
		byNode[r.NodeID] = r
	}

	resp.Body = meta.RewriteBrokerAddresses(func(nodeID int32, host string, port int32) (string, int32) {
		rule, ok := byNode[nodeID]
		if !ok {
			return host, port
		}
		return rule.AdvertisedHost, rule.AdvertisedPort
	})
	return FilterResult{}, nil
}
