// Package poll runs named, cancellable periodic fetches. Each task is one
// goroutine; its ticks never overlap and a failed tick never stops it.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/carpool-client/internal/observability"
)

// Fetch is one polling tick. The context is cancelled when the task stops,
// which also aborts an in-flight request.
type Fetch func(ctx context.Context) error

type options struct {
	immediate bool
}

type Option func(*options)

// WithImmediate runs the first tick right away instead of after one
// interval.
func WithImmediate() Option {
	return func(o *options) { o.immediate = true }
}

// Handle controls one running task.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the task and waits for its goroutine to exit. Safe to call
// more than once.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Name() string { return h.name }

// Coordinator owns the polling tasks of one mounted view.
type Coordinator struct {
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Handle
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, tasks: make(map[string]*Handle)}
}

// Start schedules fetch every interval under name. A task already running
// under the same name is stopped first, so a changed dependency (say, the
// selected conversation) never leaves the old task behind.
func (c *Coordinator) Start(ctx context.Context, name string, interval time.Duration, fetch Fetch, opts ...Option) *Handle {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	h := &Handle{name: name, cancel: cancel, done: make(chan struct{})}

	// one task per name even under concurrent starts; the replaced task is
	// stopped before the new goroutine runs
	c.mu.Lock()
	old := c.tasks[name]
	c.tasks[name] = h
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	observability.PollTasksActive.Inc()
	go c.run(taskCtx, h, interval, fetch, o)
	return h
}

// Stop stops the task registered under name, if any.
func (c *Coordinator) Stop(name string) {
	c.mu.Lock()
	h := c.tasks[name]
	delete(c.tasks, name)
	c.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// StopAll stops every task; used when a view unmounts.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	tasks := c.tasks
	c.tasks = make(map[string]*Handle)
	c.mu.Unlock()
	for _, h := range tasks {
		h.Stop()
	}
}

// Running reports whether a task is registered under name.
func (c *Coordinator) Running(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[name]
	return ok
}

func (c *Coordinator) run(ctx context.Context, h *Handle, interval time.Duration, fetch Fetch, o options) {
	defer close(h.done)
	defer observability.PollTasksActive.Dec()

	if o.immediate {
		c.tick(ctx, h.name, fetch)
	}

	// a ticker drops ticks a slow fetch missed instead of queueing them
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx, h.name, fetch)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context, name string, fetch Fetch) {
	if ctx.Err() != nil {
		return
	}
	observability.PollTicksTotal.WithLabelValues(name).Inc()
	err := fetch(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	observability.PollFailuresTotal.WithLabelValues(name).Inc()
	c.logger.Warn("poll_tick_failed", "task", name, "error", err)
}
