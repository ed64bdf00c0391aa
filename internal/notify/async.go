package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

// AsyncDispatcher decouples notification delivery from the caller: Notify
// enqueues and returns immediately, a worker goroutine drives the inner
// dispatcher. When the buffer is full the message is dropped and counted
// rather than blocking the edge-creation path.
type AsyncDispatcher struct {
	inner   Dispatcher
	queue   chan Message
	done    chan struct{}
	dropped atomic.Int64
	closed  sync.Once
}

// NewAsyncDispatcher wraps inner with a buffered asynchronous queue.
func NewAsyncDispatcher(inner Dispatcher, buffer int) *AsyncDispatcher {
	d := &AsyncDispatcher{
		inner: inner,
		queue: make(chan Message, buffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *AsyncDispatcher) run() {
	defer close(d.done)
	for m := range d.queue {
		// Delivery is best-effort; the inner dispatcher owns retries.
		_ = d.inner.Notify(context.Background(), m)
	}
}

// Notify implements Dispatcher. It never blocks and never fails the
// caller; a saturated queue drops the message.
func (d *AsyncDispatcher) Notify(ctx context.Context, m Message) error {
	select {
	case d.queue <- m:
	default:
		d.dropped.Add(1)
	}
	return nil
}

// Dropped returns the number of messages discarded due to a full queue.
func (d *AsyncDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting messages and waits for the queue to drain.
func (d *AsyncDispatcher) Close() {
	d.closed.Do(func() {
		close(d.queue)
		<-d.done
	})
}

// LogDispatcher prints notifications to stdout. It backs the CLI, where
// there is no delivery collaborator.
type LogDispatcher struct{}

// Notify implements Dispatcher.
func (LogDispatcher) Notify(ctx context.Context, m Message) error {
	recipients := make([]string, len(m.Recipients))
	for i, r := range m.Recipients {
		recipients[i] = r.String()
	}
	color.Cyan("notify %s: %s -> %v: %s", m.ID, m.Sender, recipients, m.Subject)
	return nil
}
