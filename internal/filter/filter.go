// Package filter implements the proxy's request/response filter chain: a
// sequence of named stages, each of which can inspect or rewrite a Kafka
// frame before it continues toward its destination. A chain is built once
// per virtual cluster binding and reused for every connection that binding
// accepts.
package filter

import (
	"context"
	"fmt"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

// RequestFilter inspects or rewrites a client request before it is
// forwarded upstream. FilterResult.Continuation lets a filter park the rest
// of its work on an async dependency (a KMS call, a cache lookup); the
// chain resolves it inline before moving on. FilterResult also
// distinguishes "continue the chain" from "short-circuit with this response".
type RequestFilter interface {
	Name() string
	OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error)
}

// ResponseFilter inspects or rewrites an upstream response before it is
// relayed back to the client.
type ResponseFilter interface {
	Name() string
	OnResponse(ctx context.Context, resp *kafka.Response) (FilterResult, error)
}

// FilterResult tells the chain driver what to do after a filter runs.
type FilterResult struct {
	// ShortCircuit, when set, is sent to the client immediately instead of
	// continuing the chain / forwarding upstream. Used by the built-in
	// ApiVersions filter, and by the encryption filter when a KMS lease is
	// exhausted (RequestNotSatisfiable).
	ShortCircuit *kafka.Response

	// Continuation, when set, carries work a filter parked on an async
	// dependency (a KMS round trip). The driver resolves it by calling
	// Resume and treating its return value as this filter's real result,
	// then releasing it back to the pool. A driver that schedules Resume
	// on a worker goroutine instead of calling it inline frees the
	// connection's read loop for the duration of the KMS call.
	Continuation *Continuation
}

// APIKeyScoped is implemented by filters that only want to see specific API
// keys, so the chain driver can skip invoking them — and skip the
// structured decode entirely — for frames they don't subscribe to.
type APIKeyScoped interface {
	APIKeys() []kafka.APIKey
}

// GenericRequestFilter is implemented by filters that want every request
// regardless of API key (an audit filter, a metrics filter) without
// requiring the body be structurally decoded. Mixing a GenericRequestFilter
// with an APIKeyScoped RequestFilter in the same filter value is a
// construction-time error — see ValidateCapabilities.
type GenericRequestFilter interface {
	OnEveryRequest(ctx context.Context, header kafka.RequestHeader, raw []byte) error
}

// ValidateCapabilities enforces the chain's capability-mixing rule: a
// filter value is exactly one of (a) a CompositeFilter contributing a
// flattened sub-chain, (b) a generic request-and/or-response filter seeing
// raw frames regardless of API key, or (c) one or more per-API-key scoped
// filters. A filter that tries to be both generic and API-key-scoped has
// an ambiguous contract — would OnEveryRequest fire for a key OnRequest
// also claims? — and a filter that is both composite and a direct stage is
// equally ambiguous — does the driver invoke it directly or only through
// its delegates? — so chain construction refuses both outright rather than
// guessing. Composite nesting itself is capped at maxCompositeDepth.
func ValidateCapabilities(filters []any) error {
	for _, f := range filters {
		_, generic := f.(GenericRequestFilter)
		_, scoped := f.(APIKeyScoped)
		if generic && scoped {
			return fmt.Errorf("filter chain: %T mixes GenericRequestFilter with APIKeyScoped, forbidden", f)
		}
	}
	return validateCompositeDepth(filters, 1)
}
