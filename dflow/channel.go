package dflow

import (
	"sync"
)

// Channel is the streaming variant of a slot's payload: rather than a single
// published Value, a channel-declared slot carries a sequence of elements
// terminated by an explicit end-of-stream marker. The slot itself still only
// ever publishes once — what it publishes is this Channel handle, which is
// then read incrementally by every subscriber.
type Channel struct {
	mu     sync.Mutex
	buf    []interface{}
	closed bool
	cond   *sync.Cond

	subscribers []*channelReader
}

// NewChannel creates an empty, open Channel.
func NewChannel() *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Push appends one element to the stream, waking any subscriber blocked in
// Next. Pushing after Close panics: a closed channel's producer has already
// declared it has nothing further to say.
func (c *Channel) Push(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic("dflow: Push on a closed Channel")
	}
	c.buf = append(c.buf, v)
	c.cond.Broadcast()
}

// Close marks the end of the stream. Calling Close twice is a no-op, unlike
// a Committer's double-release panic, since multiple producers draining
// down to a shared close point is a normal pattern for fan-in channels.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cond.Broadcast()
}

// channelReader is one subscriber's read cursor into a Channel's buffer.
type channelReader struct {
	ch  *Channel
	pos int
}

// Subscribe returns a new independent read cursor over the channel,
// starting from whatever has already been pushed. Every subscriber sees
// every element; a Channel is fan-out, not a work queue.
func (c *Channel) Subscribe() *channelReader {
	r := &channelReader{ch: c}
	c.mu.Lock()
	c.subscribers = append(c.subscribers, r)
	c.mu.Unlock()
	return r
}

// Next blocks until either another element is available (returned with ok
// true) or the stream has closed with nothing left to read (ok false).
func (r *channelReader) Next() (v interface{}, ok bool) {
	r.ch.mu.Lock()
	defer r.ch.mu.Unlock()
	for {
		if r.pos < len(r.ch.buf) {
			v = r.ch.buf[r.pos]
			r.pos++
			return v, true
		}
		if r.ch.closed {
			return nil, false
		}
		r.ch.cond.Wait()
	}
}
