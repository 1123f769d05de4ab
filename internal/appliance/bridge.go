package appliance

import (
	"context"
	"sync"
)

// eventQueueSize bounds the callback queue between the transport goroutines
// and the event loop.
const eventQueueSize = 256

type eventKind int

const (
	eventMessage eventKind = iota
	eventConnectionLost
)

// event is one transport callback, tagged with the generation of the
// connection that produced it.
type event struct {
	kind       eventKind
	generation uint64
	topic      string
	payload    []byte
	err        error
}

// bridge marshals transport callbacks onto a single event loop.
//
// Transport goroutines only ever call post. While run is active the loop is
// the sole caller of the Normalizer and the only place a connection loss is
// applied. Without a loop, post applies the event itself. Either way every
// dispatch holds dispatchMu, so the snapshot has exactly one writer.
//
// run may be called again after it returns; each call gets a fresh done
// channel.
type bridge struct {
	events chan event

	// mu is held shared by posters while they enqueue and exclusively by
	// run while it starts or stops the loop.
	mu      sync.RWMutex
	running bool
	done    chan struct{}

	dispatchMu sync.Mutex

	onMessage func(topic string, payload []byte)
	onLost    func(ctx context.Context, generation uint64, err error)

	// accepts reports whether a message from the given connection
	// generation is still current. Nil accepts everything.
	accepts func(generation uint64) bool

	logger   Logger
	observer Observer
}

func newBridge() *bridge {
	return &bridge{
		events:   make(chan event, eventQueueSize),
		logger:   noopLogger{},
		observer: noopObserver{},
	}
}

// post hands one event to the loop, or applies it directly when no loop is
// running. Messages are dropped when the queue is full; a connection loss
// waits for room.
func (b *bridge) post(ev event) {
	for {
		b.mu.RLock()
		if !b.running {
			b.mu.RUnlock()
			b.dispatch(context.Background(), ev)
			return
		}
		queued := b.enqueue(ev, b.done)
		b.mu.RUnlock()
		if queued {
			return
		}
	}
}

// enqueue returns false if the loop stopped before the event was taken.
func (b *bridge) enqueue(ev event, done <-chan struct{}) bool {
	if ev.kind == eventMessage {
		select {
		case b.events <- ev:
		case <-done:
			return false
		default:
			b.observer.MessageDropped(dropQueueFull)
			b.logger.Warn("event queue full, dropping message", "topic", ev.topic)
		}
		return true
	}

	select {
	case b.events <- ev:
		return true
	case <-done:
		return false
	}
}

// run processes events until ctx is cancelled.
func (b *bridge) run(ctx context.Context) {
	b.mu.Lock()
	done := make(chan struct{})
	b.done = done
	b.running = true
	b.mu.Unlock()

	defer b.stop(done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.dispatch(ctx, ev)
		}
	}
}

// stop wakes blocked posters, waits for in-flight enqueues and applies
// whatever is left in the queue.
func (b *bridge) stop(done chan struct{}) {
	close(done)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.done = nil
	for {
		select {
		case ev := <-b.events:
			b.dispatch(context.Background(), ev)
		default:
			return
		}
	}
}

func (b *bridge) dispatch(ctx context.Context, ev event) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	switch ev.kind {
	case eventMessage:
		if b.accepts != nil && !b.accepts(ev.generation) {
			b.observer.MessageDropped(dropStaleConnection)
			b.logger.Debug("dropping message from replaced connection", "topic", ev.topic)
			return
		}
		if b.onMessage != nil {
			b.onMessage(ev.topic, ev.payload)
		}
	case eventConnectionLost:
		if b.onLost != nil {
			b.onLost(ctx, ev.generation, ev.err)
		}
	}
}
