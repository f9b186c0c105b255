// Package rwcoord implements a readers-writer discipline: up to K
// concurrent readers, at most one writer excluding all readers, and a
// writer-gate protocol that prevents either side from starving the
// other.
//
// Readers acquire the writer-gate briefly (to queue behind any pending
// writer), take one of K reader tokens, then release the gate. Writers
// acquire the gate exclusively and hold it while draining all K reader
// tokens, releasing both on exit. This mirrors the mutex-guarded shared
// state idiom used throughout cuemby/warren/pkg/manager, generalized to a
// bounded-parallelism, context-cancellable acquire contract.
package rwcoord

import "context"

// Coordinator arbitrates access to one store (or store pool).
type Coordinator struct {
	gate    chan struct{} // capacity 1: writer exclusivity
	readers chan struct{} // capacity K: reader tokens
	k       int
}

// New creates a coordinator allowing up to k concurrent readers.
func New(k int) *Coordinator {
	c := &Coordinator{
		gate:    make(chan struct{}, 1),
		readers: make(chan struct{}, k),
		k:       k,
	}
	for i := 0; i < k; i++ {
		c.readers <- struct{}{}
	}
	return c
}

// AcquireRead blocks until a reader token is available, queuing behind any
// pending or active writer. Returns a release function that must be
// called exactly once.
func (c *Coordinator) AcquireRead(ctx context.Context) (func(), error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-c.readers:
		<-c.gate
		return func() { c.readers <- struct{}{} }, nil
	case <-ctx.Done():
		<-c.gate
		return nil, ctx.Err()
	}
}

// AcquireWrite blocks until exclusive access is available: the gate and
// every reader token. Returns a release function that must be called
// exactly once.
func (c *Coordinator) AcquireWrite(ctx context.Context) (func(), error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	drained := 0
	for drained < c.k {
		select {
		case <-c.readers:
			drained++
		case <-ctx.Done():
			for ; drained > 0; drained-- {
				c.readers <- struct{}{}
			}
			<-c.gate
			return nil, ctx.Err()
		}
	}

	return func() {
		for i := 0; i < c.k; i++ {
			c.readers <- struct{}{}
		}
		<-c.gate
	}, nil
}
