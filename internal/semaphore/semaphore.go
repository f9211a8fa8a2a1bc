// Package semaphore contains a small counting semaphore used to bound
// concurrency in the worker pool.
package semaphore

import "fmt"

// Semaphore is a counting semaphore. It must be initialized with NewSemaphore
// before use.
type Semaphore struct {
	c      chan struct{}
	closed chan struct{}
}

// NewSemaphore creates a new semaphore that allows up to size concurrent
// holders.
func NewSemaphore(size int) *Semaphore {
	return &Semaphore{
		c:      make(chan struct{}, size),
		closed: make(chan struct{}),
	}
}

// Close shuts down the semaphore and unblocks anyone waiting on P.
func (obj *Semaphore) Close() {
	close(obj.closed)
}

// P acquires n resources, or returns an error if the semaphore was closed
// while waiting.
func (obj *Semaphore) P(n int) error {
	for i := 0; i < n; i++ {
		select {
		case obj.c <- struct{}{}:
		case <-obj.closed:
			return fmt.Errorf("semaphore: closed")
		}
	}
	return nil
}

// V releases n resources.
func (obj *Semaphore) V(n int) error {
	for i := 0; i < n; i++ {
		select {
		case <-obj.c:
		case <-obj.closed:
			return fmt.Errorf("semaphore: closed")
		default:
			panic("semaphore: V > P")
		}
	}
	return nil
}
