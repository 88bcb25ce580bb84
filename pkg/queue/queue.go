package queue

import (
	"context"
	"time"
)

// Dispatch is the unit handed from the dispatcher to the worker pool. The
// worker re-reads the job row; the message carries identity, not state.
type Dispatch struct {
	ID         string            `json:"id"`
	JobID      string            `json:"job_id"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type Handler func(ctx context.Context, msg Dispatch) error

// Publisher is the dispatcher-facing side of the work queue.
type Publisher interface {
	Publish(ctx context.Context, msg Dispatch) error
}

// Queue is the full contract shared by the dispatcher and the worker pool.
// Both sides receive an injected Queue rather than touching broker clients
// directly.
type Queue interface {
	Publisher
	Consume(ctx context.Context, handler Handler) error
	Ping(ctx context.Context) error
	Close() error
}
