package filter

import (
	"context"
	"fmt"

	"github.com/edgekafka/edgekafka/internal/kafka"
	"github.com/rs/zerolog"
)

// Chain drives a fixed, ordered list of filters over every request and
// response that crosses one virtual cluster binding. It is built once at
// binding construction and is safe for concurrent use by many connections.
type Chain struct {
	requestFilters  []RequestFilter
	responseFilters []ResponseFilter
	byAPIKey        map[kafka.APIKey]bool // union of every scoped filter's interest
	anyGeneric      bool
	log             zerolog.Logger
}

// New validates and builds a Chain from a list of filter values. A value
// may implement RequestFilter, ResponseFilter, or both (the encryption
// filter rewrites both Produce requests and Fetch responses under one
// scoped filter) — orthogonal to the CompositeFilter capability. A value
// that implements CompositeFilter is not itself a stage: its delegates are
// expanded into the chain in its place, recursively, before the chain is
// built, so every filter the driver ever invokes is a genuine stage.
func New(log zerolog.Logger, filters []any) (*Chain, error) {
	if err := ValidateCapabilities(filters); err != nil {
		return nil, err
	}
	filters = expandFilters(filters)

	c := &Chain{byAPIKey: make(map[kafka.APIKey]bool), log: log}
	for _, f := range filters {
		if rf, ok := f.(RequestFilter); ok {
			c.requestFilters = append(c.requestFilters, rf)
		}
		if rf, ok := f.(ResponseFilter); ok {
			c.responseFilters = append(c.responseFilters, rf)
		}
		if _, ok := f.(GenericRequestFilter); ok {
			c.anyGeneric = true
		}
		if scoped, ok := f.(APIKeyScoped); ok {
			for _, k := range scoped.APIKeys() {
				c.byAPIKey[k] = true
			}
		}
	}
	return c, nil
}

// WantsRequestBody reports whether any installed filter needs this request
// header's body structurally decoded, so the frame codec can skip the
// decode (and stay on the opaque fast path) for everything else.
func (c *Chain) WantsRequestBody(h kafka.RequestHeader) bool {
	if c.anyGeneric {
		return false // generic filters read raw bytes, never need structured decode
	}
	return c.byAPIKey[h.APIKey]
}

// WantsResponseBody mirrors WantsRequestBody for the backend→client path,
// keyed by the apiKey the backend handler recovered from its correlation
// tracker (a response frame carries no api key of its own).
func (c *Chain) WantsResponseBody(apiKey kafka.APIKey) bool {
	return c.byAPIKey[apiKey]
}

// RunRequest drives req through every installed request filter in order. A
// filter returning a non-nil ShortCircuit stops the chain immediately; the
// caller must send that response to the client instead of forwarding
// upstream.
func (c *Chain) RunRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	if c.anyGeneric {
		for _, f := range c.requestFilters {
			if gf, ok := f.(GenericRequestFilter); ok {
				if err := gf.OnEveryRequest(ctx, req.Header, req.Raw); err != nil {
					return FilterResult{}, fmt.Errorf("filter %s: %w", f.Name(), err)
				}
			}
		}
		return FilterResult{}, nil
	}
	for _, f := range c.requestFilters {
		result, err := f.OnRequest(ctx, req)
		if err != nil {
			return FilterResult{}, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
		if result.Continuation != nil {
			result, err = resolveContinuation(ctx, result.Continuation)
			if err != nil {
				return FilterResult{}, fmt.Errorf("filter %s: %w", f.Name(), err)
			}
		}
		if result.ShortCircuit != nil {
			c.log.Debug().Str("filter", f.Name()).Int16("apiKey", req.Header.APIKey).Msg("request short-circuited")
			return result, nil
		}
	}
	return FilterResult{}, nil
}

// resolveContinuation runs a parked filter continuation to completion and
// releases it. Today this happens inline on the caller's goroutine; a
// future driver that wants the connection's read loop free during the
// async wait can swap this for a dispatch onto a worker pool without
// changing any filter's OnRequest/OnResponse contract.
func resolveContinuation(ctx context.Context, cont *Continuation) (FilterResult, error) {
	defer Release(cont)
	return cont.Resume(ctx)
}

// RunResponse drives resp through every installed response filter in order.
func (c *Chain) RunResponse(ctx context.Context, resp *kafka.Response) (FilterResult, error) {
	for _, f := range c.responseFilters {
		result, err := f.OnResponse(ctx, resp)
		if err != nil {
			return FilterResult{}, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
		if result.Continuation != nil {
			result, err = resolveContinuation(ctx, result.Continuation)
			if err != nil {
				return FilterResult{}, fmt.Errorf("filter %s: %w", f.Name(), err)
			}
		}
		if result.ShortCircuit != nil {
			return result, nil
		}
	}
	return FilterResult{}, nil
}
