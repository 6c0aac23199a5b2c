// Package queue carries units of work from the parser to the processor.
//
// Delivery is at least once. A received message stays pending until it is
// acknowledged; pending messages idle longer than the visibility timeout are
// handed out again by Reclaim with an incremented delivery count. Messages
// that should never be retried are moved aside with DeadLetter.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Send after the queue stopped accepting messages.
var ErrClosed = errors.New("queue closed")

// Message is one delivery of a unit of work.
type Message struct {
	ID         string
	Body       []byte
	Deliveries int64
}

// Producer sends message bodies and returns the assigned message ID.
type Producer interface {
	Send(ctx context.Context, body []byte) (string, error)
}

// Consumer receives, settles and reclaims messages for one consumer group.
type Consumer interface {
	// Receive blocks up to the poll interval and returns at most max new
	// messages. An empty slice with a nil error means nothing arrived.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Reclaim takes over messages pending longer than minIdle.
	Reclaim(ctx context.Context, minIdle time.Duration, max int) ([]Message, error)

	// Ack removes messages from the pending set.
	Ack(ctx context.Context, ids ...string) error

	// DeadLetter records msg with reason and acknowledges it.
	DeadLetter(ctx context.Context, msg Message, reason string) error
}
