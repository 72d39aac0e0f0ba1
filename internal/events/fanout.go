package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/carpool-client/internal/views"
)

// Fanout implements views.Notifier. Every update goes to all in-process
// subscribers and, asynchronously, to the publisher. Views never block on
// a slow broker: updates are queued and dropped when the queue is full.
type Fanout struct {
	publisher Publisher
	logger    *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(views.Update)

	queue   chan views.Update
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewFanout(p Publisher, logger *slog.Logger) *Fanout {
	if p == nil {
		p = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{
		publisher: p,
		logger:    logger,
		subs:      make(map[int]func(views.Update)),
		queue:     make(chan views.Update, 256),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go f.drain()
	return f
}

// Subscribe registers fn for every update until the returned func is called.
func (f *Fanout) Subscribe(fn func(views.Update)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Fanout) Notify(u views.Update) {
	f.mu.RLock()
	subs := make([]func(views.Update), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(u)
	}
	f.Publish(u)
}

// Publish queues u for the external publisher only, skipping in-process
// subscribers.
func (f *Fanout) Publish(u views.Update) {
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.queue <- u:
	default:
		f.logger.Warn("event_dropped", "view", u.View, "kind", u.Kind)
	}
}

func (f *Fanout) drain() {
	defer close(f.stopped)
	for {
		select {
		case <-f.done:
			return
		case u := <-f.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.publisher.Publish(ctx, u); err != nil {
				f.logger.Warn("event_publish_failed", "view", u.View, "error", err)
			}
			cancel()
		}
	}
}

// Close stops publishing and closes the publisher. Queued updates that were
// not yet shipped are dropped.
func (f *Fanout) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		<-f.stopped
		err = f.publisher.Close()
	})
	return err
}
