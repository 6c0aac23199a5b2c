package queue

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DeadMessage is a message moved aside by DeadLetter.
type DeadMessage struct {
	Message
	Reason string
}

type inflight struct {
	msg         Message
	seq         uint64
	deliveredAt time.Time
}

type readyEntry struct {
	msg Message
	seq uint64
}

// Memory is an in-process queue with the same delivery semantics as
// RedisStream. It backs single-process runs and tests.
type Memory struct {
	mu       sync.Mutex
	ready    []readyEntry
	inflight map[string]*inflight
	dead     []DeadMessage
	notify   chan struct{}
	poll     time.Duration
	now      func() time.Time

	seq    atomic.Uint64
	closed atomic.Bool
}

// NewMemory creates an empty queue. Receive waits at most poll for a message.
func NewMemory(poll time.Duration) *Memory {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Memory{
		inflight: make(map[string]*inflight),
		notify:   make(chan struct{}, 1),
		poll:     poll,
		now:      time.Now,
	}
}

// Send appends body to the queue.
func (q *Memory) Send(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if q.closed.Load() {
		return "", ErrClosed
	}
	seq := q.seq.Add(1)
	id := strconv.FormatUint(seq, 10) + "-0"

	q.mu.Lock()
	q.ready = append(q.ready, readyEntry{
		msg: Message{ID: id, Body: append([]byte(nil), body...)},
		seq: seq,
	})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return id, nil
}

// Receive returns up to max new messages, waiting at most the poll interval.
func (q *Memory) Receive(ctx context.Context, max int) ([]Message, error) {
	if msgs := q.take(max); len(msgs) > 0 {
		return msgs, nil
	}

	timer := time.NewTimer(q.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.notify:
	case <-timer.C:
	}
	return q.take(max), nil
}

func (q *Memory) take(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.ready))
	if n <= 0 {
		return nil
	}
	now := q.now()
	out := make([]Message, 0, n)
	for _, e := range q.ready[:n] {
		e.msg.Deliveries++
		q.inflight[e.msg.ID] = &inflight{msg: e.msg, seq: e.seq, deliveredAt: now}
		out = append(out, e.msg)
	}
	q.ready = q.ready[n:]
	return out
}

// Reclaim redelivers up to max in-flight messages idle for at least minIdle,
// oldest first.
func (q *Memory) Reclaim(ctx context.Context, minIdle time.Duration, max int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var idle []*inflight
	for _, f := range q.inflight {
		if now.Sub(f.deliveredAt) >= minIdle {
			idle = append(idle, f)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].seq < idle[j].seq })
	if len(idle) > max {
		idle = idle[:max]
	}

	out := make([]Message, 0, len(idle))
	for _, f := range idle {
		f.msg.Deliveries++
		f.deliveredAt = now
		out = append(out, f.msg)
	}
	return out, nil
}

// Ack removes ids from the in-flight set. Unknown ids are ignored.
func (q *Memory) Ack(_ context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		delete(q.inflight, id)
	}
	return nil
}

// DeadLetter records msg and removes it from the in-flight set.
func (q *Memory) DeadLetter(_ context.Context, msg Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, msg.ID)
	q.dead = append(q.dead, DeadMessage{Message: msg, Reason: reason})
	return nil
}

// Dead returns a copy of the dead-lettered messages.
func (q *Memory) Dead() []DeadMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadMessage(nil), q.dead...)
}

// Len returns the number of messages not yet delivered.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Pending returns the number of delivered but unacknowledged messages.
func (q *Memory) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Close stops Send from accepting messages. Delivered messages can still be
// settled.
func (q *Memory) Close() { q.closed.Store(true) }
