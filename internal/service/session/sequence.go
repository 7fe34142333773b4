package session

import "sync/atomic"

// Sequencer hands out message sequence numbers starting at zero.
// Safe for concurrent use; every caller gets a distinct value.
type Sequencer struct {
	counter int64
}

// Next returns the current sequence number and advances the counter.
func (s *Sequencer) Next() int64 {
	return atomic.AddInt64(&s.counter, 1) - 1
}

// Peek returns the number the next call to Next will return.
func (s *Sequencer) Peek() int64 {
	return atomic.LoadInt64(&s.counter)
}
