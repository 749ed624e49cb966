package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/edgekafka/edgekafka/internal/kafka"
	"github.com/rs/zerolog"
)

// stubRequestFilter records every request it sees and returns a fixed result.
type stubRequestFilter struct {
	name    string
	result  FilterResult
	err     error
	seen    []kafka.APIKey
	apiKeys []kafka.APIKey
}

func (s *stubRequestFilter) Name() string { return s.name }

func (s *stubRequestFilter) OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	s.seen = append(s.seen, req.Header.APIKey)
	return s.result, s.err
}

func (s *stubRequestFilter) APIKeys() []kafka.APIKey { return s.apiKeys }

// stubResponseFilter mirrors stubRequestFilter for the response path.
type stubResponseFilter struct {
	name   string
	result FilterResult
	err    error
	calls  int
}

func (s *stubResponseFilter) Name() string { return s.name }

func (s *stubResponseFilter) OnResponse(ctx context.Context, resp *kafka.Response) (FilterResult, error) {
	s.calls++
	return s.result, s.err
}

// suspendingFilter parks its real result behind a Continuation, the way the
// encryption filter does when it leases a DEK.
type suspendingFilter struct {
	name   string
	result FilterResult
	err    error
}

func (s *suspendingFilter) Name() string { return s.name }

func (s *suspendingFilter) OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	cont := Acquire()
	cont.Resume = func(ctx context.Context) (FilterResult, error) {
		return s.result, s.err
	}
	return FilterResult{Continuation: cont}, nil
}

// genericFilter sees every request regardless of api key.
type genericFilter struct {
	name string
	seen []kafka.RequestHeader
}

func (g *genericFilter) Name() string { return g.name }

func (g *genericFilter) OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	return FilterResult{}, nil
}

func (g *genericFilter) OnEveryRequest(ctx context.Context, header kafka.RequestHeader, raw []byte) error {
	g.seen = append(g.seen, header)
	return nil
}

func TestChainRunRequestStopsAtShortCircuit(t *testing.T) {
	short := &kafka.Response{Header: kafka.ResponseHeader{CorrelationID: 5}}
	first := &stubRequestFilter{name: "first", result: FilterResult{ShortCircuit: short}, apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}
	second := &stubRequestFilter{name: "second", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}

	c, err := New(zerolog.Nop(), []any{first, second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &kafka.Request{Header: kafka.RequestHeader{APIKey: kafka.APIKeyProduce}}
	result, err := c.RunRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != short {
		t.Fatalf("expected the first filter's short circuit to be returned, got %+v", result)
	}
	if len(second.seen) != 0 {
		t.Fatal("expected the chain to stop before invoking the second filter")
	}
}

func TestChainRunRequestRunsAllFiltersWhenNoneShortCircuit(t *testing.T) {
	first := &stubRequestFilter{name: "first", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}
	second := &stubRequestFilter{name: "second", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}

	c, err := New(zerolog.Nop(), []any{first, second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &kafka.Request{Header: kafka.RequestHeader{APIKey: kafka.APIKeyProduce}}
	result, err := c.RunRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != nil {
		t.Fatal("expected no short circuit")
	}
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatal("expected both filters to see the request")
	}
}

func TestChainRunRequestPropagatesFilterError(t *testing.T) {
	boom := errors.New("kms unavailable")
	first := &stubRequestFilter{name: "first", err: boom, apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}

	c, err := New(zerolog.Nop(), []any{first})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.RunRequest(context.Background(), &kafka.Request{Header: kafka.RequestHeader{APIKey: kafka.APIKeyProduce}})
	if err == nil {
		t.Fatal("expected the filter error to propagate")
	}
}

func TestChainRunRequestResolvesContinuation(t *testing.T) {
	short := &kafka.Response{Header: kafka.ResponseHeader{CorrelationID: 9}}
	s := &suspendingFilter{name: "suspender", result: FilterResult{ShortCircuit: short}}

	c, err := New(zerolog.Nop(), []any{s})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := c.RunRequest(context.Background(), &kafka.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != short {
		t.Fatalf("expected the continuation's resolved result to be returned, got %+v", result)
	}
}

func TestChainRunRequestPropagatesContinuationError(t *testing.T) {
	boom := errors.New("async failure")
	s := &suspendingFilter{name: "suspender", err: boom}

	c, err := New(zerolog.Nop(), []any{s})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.RunRequest(context.Background(), &kafka.Request{})
	if err == nil {
		t.Fatal("expected the continuation's error to propagate")
	}
}

func TestChainRunResponseStopsAtShortCircuit(t *testing.T) {
	short := &kafka.Response{Header: kafka.ResponseHeader{CorrelationID: 1}}
	first := &stubResponseFilter{name: "first", result: FilterResult{ShortCircuit: short}}
	second := &stubResponseFilter{name: "second"}

	c, err := New(zerolog.Nop(), []any{first, second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := c.RunResponse(context.Background(), &kafka.Response{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != short {
		t.Fatal("expected the first response filter's short circuit to be returned")
	}
	if second.calls != 0 {
		t.Fatal("expected the chain to stop before invoking the second response filter")
	}
}

func TestChainGenericFilterBypassesStructuredDispatch(t *testing.T) {
	g := &genericFilter{name: "generic"}

	c, err := New(zerolog.Nop(), []any{g})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &kafka.Request{Header: kafka.RequestHeader{APIKey: kafka.APIKeyProduce}, Raw: []byte("raw frame")}
	result, err := c.RunRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShortCircuit != nil {
		t.Fatal("a generic-only chain never short circuits")
	}
	if len(g.seen) != 1 || g.seen[0].APIKey != kafka.APIKeyProduce {
		t.Fatalf("expected OnEveryRequest to see the request header, got %+v", g.seen)
	}
}

func TestChainWantsRequestBodyFalseWhenAnyGenericFilterPresent(t *testing.T) {
	g := &genericFilter{name: "generic"}
	c, err := New(zerolog.Nop(), []any{g})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.WantsRequestBody(kafka.RequestHeader{APIKey: kafka.APIKeyProduce}) {
		t.Fatal("a generic filter chain reads raw bytes, never needs structured decode")
	}
}

func TestChainWantsRequestBodyReflectsScopedKeys(t *testing.T) {
	scoped := &stubRequestFilter{name: "scoped", apiKeys: []kafka.APIKey{kafka.APIKeyProduce, kafka.APIKeyFetch}}
	c, err := New(zerolog.Nop(), []any{scoped})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.WantsRequestBody(kafka.RequestHeader{APIKey: kafka.APIKeyProduce}) {
		t.Fatal("expected Produce to be wanted")
	}
	if !c.WantsRequestBody(kafka.RequestHeader{APIKey: kafka.APIKeyFetch}) {
		t.Fatal("expected Fetch to be wanted")
	}
	if c.WantsRequestBody(kafka.RequestHeader{APIKey: kafka.APIKeyMetadata}) {
		t.Fatal("expected Metadata to not be wanted, no filter scoped to it")
	}
}

func TestChainWantsResponseBodyMirrorsByAPIKey(t *testing.T) {
	scoped := &stubRequestFilter{name: "scoped", apiKeys: []kafka.APIKey{kafka.APIKeyFetch}}
	c, err := New(zerolog.Nop(), []any{scoped})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.WantsResponseBody(kafka.APIKeyFetch) {
		t.Fatal("expected Fetch to be wanted on the response path too")
	}
	if c.WantsResponseBody(kafka.APIKeyProduce) {
		t.Fatal("expected Produce to not be wanted, no filter scoped to it")
	}
}

func TestNewRejectsGenericAndScopedMixedInOneFilter(t *testing.T) {
	mixed := &mixedCapabilityFilter{}
	if _, err := New(zerolog.Nop(), []any{mixed}); err == nil {
		t.Fatal("expected construction to fail for a filter mixing GenericRequestFilter and APIKeyScoped")
	}
}

type mixedCapabilityFilter struct{}

func (mixedCapabilityFilter) Name() string { return "mixed" }
func (mixedCapabilityFilter) OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	return FilterResult{}, nil
}
func (mixedCapabilityFilter) OnEveryRequest(ctx context.Context, header kafka.RequestHeader, raw []byte) error {
	return nil
}
func (mixedCapabilityFilter) APIKeys() []kafka.APIKey { return []kafka.APIKey{kafka.APIKeyProduce} }

// compositeFilter is not a stage itself; it just contributes delegates.
type compositeFilter struct {
	delegates []any
}

func (c *compositeFilter) Filters() []any { return c.delegates }

// compositeAndRequestFilter illegally mixes CompositeFilter with a direct
// RequestFilter capability on the same value.
type compositeAndRequestFilter struct{}

func (compositeAndRequestFilter) Filters() []any { return nil }
func (compositeAndRequestFilter) Name() string    { return "composite-and-request" }
func (compositeAndRequestFilter) OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	return FilterResult{}, nil
}

func TestNewFlattensCompositeFilterDelegates(t *testing.T) {
	first := &stubRequestFilter{name: "first", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}
	second := &stubRequestFilter{name: "second", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}
	composite := &compositeFilter{delegates: []any{first, second}}

	c, err := New(zerolog.Nop(), []any{composite})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &kafka.Request{Header: kafka.RequestHeader{APIKey: kafka.APIKeyProduce}}
	if _, err := c.RunRequest(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatal("expected both of the composite's delegates to be flattened into the chain and invoked")
	}
}

func TestNewFlattensNestedCompositeUpToRecursionLimit(t *testing.T) {
	leaf := &stubRequestFilter{name: "leaf", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}
	inner := &compositeFilter{delegates: []any{leaf}}
	outer := &compositeFilter{delegates: []any{inner}}

	c, err := New(zerolog.Nop(), []any{outer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &kafka.Request{Header: kafka.RequestHeader{APIKey: kafka.APIKeyProduce}}
	if _, err := c.RunRequest(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leaf.seen) != 1 {
		t.Fatal("expected a composite nested two levels deep to still flatten down to its leaf delegate")
	}
}

func TestNewRejectsCompositeNestingPastRecursionLimit(t *testing.T) {
	leaf := &stubRequestFilter{name: "leaf", apiKeys: []kafka.APIKey{kafka.APIKeyProduce}}
	level3 := &compositeFilter{delegates: []any{leaf}}
	level2 := &compositeFilter{delegates: []any{level3}}
	level1 := &compositeFilter{delegates: []any{level2}}

	if _, err := New(zerolog.Nop(), []any{level1}); err == nil {
		t.Fatal("expected construction to fail for composites nested past the recursion limit of 2")
	}
}

func TestNewRejectsCompositeMixedWithDirectFilterCapability(t *testing.T) {
	mixed := &compositeAndRequestFilter{}
	if _, err := New(zerolog.Nop(), []any{mixed}); err == nil {
		t.Fatal("expected construction to fail for a filter mixing CompositeFilter with RequestFilter")
	}
}
