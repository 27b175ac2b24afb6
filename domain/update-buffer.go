package domain

import "github.com/gammazero/deque"

const DefaultUpdateBufferCap = 1000

// UpdateBuffer retains recently received diffs while no authoritative
// snapshot is held, or while a resync is in progress. It is bounded with
// drop-oldest semantics; a drop poisons the buffer until Reset, because a
// gapped buffer can never produce a consistent merge.
//
// The buffer is owned by a single goroutine and is not safe for concurrent
// use.
type UpdateBuffer struct {
	queue      deque.Deque[*OrderBookUpdate]
	capacity   int
	overflowed bool
}

func NewUpdateBuffer(capacity int) *UpdateBuffer {
	if capacity <= 0 {
		capacity = DefaultUpdateBufferCap
	}
	return &UpdateBuffer{capacity: capacity}
}

func (b *UpdateBuffer) Push(update *OrderBookUpdate) {
	if b.queue.Len() >= b.capacity {
		b.queue.PopFront()
		b.overflowed = true
	}
	b.queue.PushBack(update)
}

func (b *UpdateBuffer) Len() int {
	return b.queue.Len()
}

// Overflowed reports whether any diff has been dropped since the last Reset.
func (b *UpdateBuffer) Overflowed() bool {
	return b.overflowed
}

// Items returns the buffered diffs in arrival order without consuming them.
func (b *UpdateBuffer) Items() []*OrderBookUpdate {
	items := make([]*OrderBookUpdate, b.queue.Len())
	for i := 0; i < b.queue.Len(); i++ {
		items[i] = b.queue.At(i)
	}
	return items
}

func (b *UpdateBuffer) Reset() {
	b.queue.Clear()
	b.overflowed = false
}
