package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/wsrelay/internal/connection"
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

// Config holds configuration for the Router.
type Config struct {
	// Starting capacity of each subscription queue. Queues grow on demand.
	QueueSize int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{QueueSize: 1024}
}

// Stats contains runtime statistics.
type Stats struct {
	Published     int64
	Delivered     int64
	Unrouted      int64
	Subscriptions int
	Events        map[string]int64
}

// Router fans events out to subscriptions by event name. It satisfies
// connection.Publisher, so it can be handed directly to a Manager.
type Router struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string][]*Subscription
	counts map[string]int64
	closed bool
	nextID uint64

	published atomic.Int64
	delivered atomic.Int64
	unrouted  atomic.Int64
}

// New creates a Router.
func New(cfg Config, logger *slog.Logger) *Router {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string][]*Subscription),
		counts: make(map[string]int64),
	}
}

// Subscribe registers interest in events named name, or every event when
// name is Wildcard. Subscribing to a closed router returns a closed
// subscription.
func (r *Router) Subscribe(name string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &Subscription{
		id:     r.nextID,
		name:   name,
		queue:  NewQueue[connection.Event](r.cfg.QueueSize),
		router: r,
	}
	if r.closed {
		sub.queue.Close()
		return sub
	}
	r.subs[name] = append(r.subs[name], sub)

	r.logger.Debug("subscription added", "event", name, "id", sub.id)
	return sub
}

// Publish delivers ev to every subscription for ev.Name and to every
// wildcard subscription. It never blocks.
func (r *Router) Publish(ev connection.Event) {
	r.published.Add(1)

	r.mu.Lock()
	r.counts[ev.Name]++
	named := r.subs[ev.Name]
	var wild []*Subscription
	if ev.Name != Wildcard {
		wild = r.subs[Wildcard]
	}
	r.mu.Unlock()

	if len(named) == 0 && len(wild) == 0 {
		r.unrouted.Add(1)
		return
	}

	for _, sub := range named {
		if sub.queue.Push(ev) {
			r.delivered.Add(1)
		}
	}
	for _, sub := range wild {
		if sub.queue.Push(ev) {
			r.delivered.Add(1)
		}
	}
}

// Close closes every subscription. Queued events remain readable.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for name, subs := range r.subs {
		for _, sub := range subs {
			sub.queue.Close()
		}
		delete(r.subs, name)
	}
	r.logger.Info("router closed", "published", r.published.Load())
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, subs := range r.subs {
		n += len(subs)
	}
	events := make(map[string]int64, len(r.counts))
	for name, c := range r.counts {
		events[name] = c
	}

	return Stats{
		Published:     r.published.Load(),
		Delivered:     r.delivered.Load(),
		Unrouted:      r.unrouted.Load(),
		Subscriptions: n,
		Events:        events,
	}
}

func (r *Router) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[sub.name]
	for i, s := range subs {
		if s == sub {
			r.subs[sub.name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.name]) == 0 {
		delete(r.subs, sub.name)
	}
}

// Subscription is one consumer's view of the event stream.
type Subscription struct {
	id     uint64
	name   string
	queue  *Queue[connection.Event]
	router *Router
	once   sync.Once
}

// Name returns the event name this subscription matches.
func (s *Subscription) Name() string { return s.name }

// Receive waits for the next event. It returns false when ctx is done or
// the subscription is closed and drained.
func (s *Subscription) Receive(ctx context.Context) (connection.Event, bool) {
	return s.queue.Pop(ctx)
}

// TryReceive returns the next event without blocking.
func (s *Subscription) TryReceive() (connection.Event, bool) {
	return s.queue.TryPop()
}

// Drain returns up to max queued events.
func (s *Subscription) Drain(max int) []connection.Event {
	return s.queue.Drain(max)
}

// Len returns the number of queued events.
func (s *Subscription) Len() int { return s.queue.Len() }

// QueueStats returns statistics for the underlying queue.
func (s *Subscription) QueueStats() QueueStats { return s.queue.Stats() }

// Unsubscribe detaches the subscription. Already-queued events can still be read.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.router.remove(s)
		s.queue.Close()
	})
}

// Handle calls fn for every event until ctx is done or the subscription is closed.
func (s *Subscription) Handle(ctx context.Context, fn func(connection.Event)) {
	for {
		ev, ok := s.Receive(ctx)
		if !ok {
			return
		}
		fn(ev)
	}
}
