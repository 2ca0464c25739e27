package queue

import (
	"context"
	"time"
)

// Queue defines a durable, at-least-once work queue with delayed delivery.
// A dequeued message stays invisible until it is acked, nacked, or its
// visibility timeout expires and the reaper returns it to the ready set.
type Queue interface {
	// Enqueue adds a message, delivering it no earlier than delay from now
	Enqueue(ctx context.Context, msg *Message, delay time.Duration) error

	// Dequeue claims the earliest due message whose class is in classes.
	// Returns nil, nil when nothing is due.
	Dequeue(ctx context.Context, classes ...Class) (*Message, error)

	// Ack removes a claimed message permanently
	Ack(ctx context.Context, id string) error

	// Nack returns a claimed message to the queue for redelivery after delay
	Nack(ctx context.Context, id string, delay time.Duration) error

	// Reap returns expired in-flight messages to the ready set and reports
	// how many were redelivered
	Reap(ctx context.Context, now time.Time) (int, error)

	// Stats returns queue statistics
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the storage
	Close() error
}
