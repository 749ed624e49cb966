package filter

import (
	"context"
	"sync"
)

// Continuation carries the remainder of a filter's work across an async
// boundary (a KMS call, a cache lookup) without allocating a new future per
// hop. One is taken from the pool (Acquire) when a filter's
// OnRequest/OnResponse needs to suspend; the chain driver runs Resume
// inline on the calling goroutine and then releases the object back to the
// process-wide pool, from which any later suspension may reuse it rather
// than allocating per frame.
type Continuation struct {
	Resume func(ctx context.Context) (FilterResult, error)
}

var continuationPool = sync.Pool{
	New: func() any { return new(Continuation) },
}

// Acquire returns a zeroed Continuation ready for a new suspension.
func Acquire() *Continuation {
	return continuationPool.Get().(*Continuation)
}

// Release clears and returns c to the pool. Callers must not use c again
// after calling Release.
func Release(c *Continuation) {
	c.Resume = nil
	continuationPool.Put(c)
}
