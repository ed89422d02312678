package progress

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is each subscription's bounded channel capacity. A
// subscriber that falls this many messages behind is dropped rather than
// allowed to stall the publisher.
const subscriberBuffer = 64

// Subscription is one live attachment to a job's stream.
type Subscription struct {
	id    string
	jobID string
	ch    chan Message

	// closed is guarded by the owning stream's mutex.
	closed bool
}

// Messages returns the receive side of the subscription. The channel is
// closed when the subscriber is dropped, unsubscribed, or the job closes;
// buffered messages remain readable after close.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// JobID returns the job this subscription is attached to.
func (s *Subscription) JobID() string {
	return s.jobID
}

// jobStream is the per-job fan-out state. Its mutex serializes publishing
// for the job, which is what makes delivery order identical across
// subscribers even when candidate work fans out.
type jobStream struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	// detached means the stream was removed from the bus map while idle;
	// a subscriber that raced the removal must look the stream up again.
	detached bool
}

// Bus is the in-memory progress bus. One instance serves the whole
// process.
type Bus struct {
	mu      sync.Mutex
	streams map[string]*jobStream
	logger  *slog.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		streams: make(map[string]*jobStream),
		logger:  slog.With("component", "progress_bus"),
	}
}

// stream returns the jobStream for jobID, creating it if needed.
func (b *Bus) stream(jobID string) *jobStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	js, ok := b.streams[jobID]
	if !ok {
		js = &jobStream{subs: make(map[string]*Subscription)}
		b.streams[jobID] = js
	}
	return js
}

// Publish delivers msg to every live subscriber of jobID in order. It
// never blocks: a subscriber whose buffer is full is closed and removed.
// Publishing to a closed or unknown job is a no-op.
func (b *Bus) Publish(jobID string, msg Message) {
	js := b.stream(jobID)

	js.mu.Lock()
	defer js.mu.Unlock()
	if js.closed {
		return
	}
	for id, sub := range js.subs {
		select {
		case sub.ch <- msg:
		default:
			// Buffer full: drop the subscriber, not the message stream.
			b.logger.Warn("Dropping slow subscriber",
				"job_id", jobID,
				"subscription_id", id,
				"buffer", subscriberBuffer)
			sub.closed = true
			close(sub.ch)
			delete(js.subs, id)
		}
	}
}

// Subscribe attaches a new subscriber to jobID's stream. Messages
// published before this call are not redelivered; whether a job id is
// live is the caller's business (the boundary checks job status before
// subscribing).
func (b *Bus) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		id:    uuid.New().String(),
		jobID: jobID,
		ch:    make(chan Message, subscriberBuffer),
	}

	for {
		js := b.stream(jobID)

		js.mu.Lock()
		if js.detached {
			js.mu.Unlock()
			continue
		}
		if js.closed {
			sub.closed = true
			close(sub.ch)
			js.mu.Unlock()
			return sub
		}
		js.subs[sub.id] = sub
		js.mu.Unlock()
		return sub
	}
}

// Unsubscribe detaches a subscription and closes its channel. Idempotent.
// A stream left with no subscribers and no worker to close it (e.g. a
// subscriber to an unknown job id that disconnected) is dropped.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	js, ok := b.streams[sub.jobID]
	if !ok {
		return
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
		delete(js.subs, sub.id)
	}
	if len(js.subs) == 0 && !js.closed {
		js.detached = true
		delete(b.streams, sub.jobID)
	}
}

// CloseJob ends jobID's stream: all published messages stay readable in
// subscriber buffers, then each channel closes. Subsequent publishes are
// dropped and the stream is forgotten.
func (b *Bus) CloseJob(jobID string) {
	b.mu.Lock()
	js, ok := b.streams[jobID]
	if ok {
		delete(b.streams, jobID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	if js.closed {
		return
	}
	js.closed = true
	for id, sub := range js.subs {
		sub.closed = true
		close(sub.ch)
		delete(js.subs, id)
	}
}

// Close shuts the bus down, closing every job stream.
func (b *Bus) Close() {
	b.mu.Lock()
	streams := make(map[string]*jobStream, len(b.streams))
	for id, js := range b.streams {
		streams[id] = js
	}
	b.streams = make(map[string]*jobStream)
	b.mu.Unlock()

	for _, js := range streams {
		js.mu.Lock()
		if !js.closed {
			js.closed = true
			for id, sub := range js.subs {
				sub.closed = true
				close(sub.ch)
				delete(js.subs, id)
			}
		}
		js.mu.Unlock()
	}
}
