package reconcile

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"peerchat/pkg/boundary"
)

var (
	// ErrQueueFull is returned when a shard is at capacity; the boundary
	// owns retry for rejected pushes.
	ErrQueueFull = errors.New("reconcile queue full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("reconcile queue closed")
)

// maxPooledBuffer bounds payload buffers returned to the pool so one huge
// message does not pin resident memory.
const maxPooledBuffer = 256 * 1024

var evPool = sync.Pool{New: func() any { return &boundary.Event{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// Item wraps an Event and owns a pooled payload buffer. Consumers must call
// Done() exactly once after processing.
type Item struct {
	Ev *boundary.Event

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases pooled resources back to the pools.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		if it.Ev != nil {
			*it.Ev = boundary.Event{}
			evPool.Put(it.Ev)
			it.Ev = nil
		}
		itemPool.Put(it)
	})
}

// Queue is a bounded, sharded in-memory queue. Events are routed to a shard
// by chat id, so events for one chat (and hence one guid) are consumed in
// arrival order while chats interleave freely across shards.
type Queue struct {
	shards   []chan *Item
	capacity int
	dropped  uint64
	closed   int32
}

// NewQueue creates a Queue with the given shard count and per-shard
// capacity. Non-positive arguments select defaults.
func NewQueue(shards, capacity int) *Queue {
	if shards <= 0 {
		shards = 4
	}
	if capacity <= 0 {
		capacity = 8 * 1024
	}
	q := &Queue{shards: make([]chan *Item, shards), capacity: capacity}
	for i := range q.shards {
		q.shards[i] = make(chan *Item, capacity)
	}
	return q
}

func (q *Queue) shardFor(chatID string) chan *Item {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return q.shards[h.Sum32()%uint32(len(q.shards))]
}

// Shards returns the shard count.
func (q *Queue) Shards() int { return len(q.shards) }

// Out returns the read-only channel for shard i; do not close it.
func (q *Queue) Out(i int) <-chan *Item { return q.shards[i] }

// TryEnqueue copies ev into pooled storage and enqueues it without
// blocking. Returns ErrQueueFull when the chat's shard is saturated.
func (q *Queue) TryEnqueue(ev boundary.Event) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	newEv := evPool.Get().(*boundary.Event)
	*newEv = ev
	// slices come from the boundary's buffers; copy what we keep
	var bb *bytebufferpool.ByteBuffer
	if len(ev.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], ev.Payload...)
		newEv.Payload = bb.B[:len(ev.Payload)]
	}
	if len(ev.Author) > 0 {
		newEv.Author = append([]byte(nil), ev.Author...)
	}
	if len(ev.Signature) > 0 {
		newEv.Signature = append([]byte(nil), ev.Signature...)
	}

	it := itemPool.Get().(*Item)
	*it = Item{Ev: newEv, buf: bb}

	select {
	case q.shardFor(ev.Chat) <- it:
		queueDepth.Inc()
		return nil
	default:
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Close marks the queue closed and closes every shard channel. Workers
// drain what remains.
func (q *Queue) Close() {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return
	}
	for _, ch := range q.shards {
		close(ch)
	}
}

// Dropped returns the number of events rejected because a shard was full.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// Len returns the total queued item count across shards.
func (q *Queue) Len() int {
	n := 0
	for _, ch := range q.shards {
		n += len(ch)
	}
	return n
}
