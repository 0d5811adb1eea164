package transport

import (
	"sync"
	"sync/atomic"
)

// sendQueue is a byte-bounded FIFO of outbound frames.
//
// Enqueue never blocks: when the budget is exhausted the frame is dropped and
// counted, so a slow reader can never stall an event handler holding the
// engine lock. The write pump waits on Ready rather than a condition variable
// so it can select on its ping ticker at the same time.
type sendQueue struct {
	mu       sync.Mutex
	closed   bool
	maxBytes int
	curBytes int
	frames   [][]byte

	ready chan struct{}
	drops atomic.Uint64
}

func newSendQueue(maxBytes int) *sendQueue {
	return &sendQueue{
		maxBytes: maxBytes,
		ready:    make(chan struct{}, 1),
	}
}

func (q *sendQueue) DropCount() uint64 {
	return q.drops.Load()
}

// Enqueue appends frame if it fits within the byte budget and reports whether
// it was accepted.
func (q *sendQueue) Enqueue(frame []byte) bool {
	q.mu.Lock()
	if q.closed || len(frame) > q.maxBytes || q.curBytes+len(frame) > q.maxBytes {
		q.mu.Unlock()
		q.drops.Add(1)
		return false
	}
	q.frames = append(q.frames, frame)
	q.curBytes += len(frame)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the oldest frame without blocking.
func (q *sendQueue) TryDequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames[len(q.frames)-1] = nil
	q.frames = q.frames[:len(q.frames)-1]
	q.curBytes -= len(frame)
	return frame, true
}

// Ready signals that at least one frame may be pending. The consumer must
// drain with TryDequeue until it reports empty.
func (q *sendQueue) Ready() <-chan struct{} {
	return q.ready
}

func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.frames = nil
	q.curBytes = 0
	q.mu.Unlock()
}
