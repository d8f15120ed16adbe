// Package events implements the process-wide, in-process event bus that
// cross-cuts ingestion and the host orchestrator.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Type names an event kind, following a dotted convention (plugin.stored,
// plugin.state.changed, plugin.dependency.unhealthy, ...).
type Type string

const (
	TypePluginStored               Type = "plugin.stored"
	TypePluginStateChanged         Type = "plugin.state.changed"
	TypePluginLoaded               Type = "plugin.loaded"
	TypePluginLoadFailed           Type = "plugin.load.failed"
	TypePluginDependencyUnhealthy  Type = "plugin.dependency.unhealthy"
	TypePluginDependencyRecovered  Type = "plugin.dependency.recovered"
	TypeTrustAssigned              Type = "trust.assigned"
	TypeTrustViolation             Type = "trust.violation"
	TypeVersionPromoted            Type = "version.promoted"
	TypeVersionRolledBack          Type = "version.rolled_back"
)

// Event is a single typed message published on the bus.
type Event struct {
	ID         string
	Type       Type
	PluginName string
	Sequence   int64
	Timestamp  time.Time
	Payload    interface{}
}

// ErrBusFull is returned by Publish when the dispatch queue is saturated.
// Subscribers must not block the pipeline, so Publish is always
// non-blocking and events are dropped rather than backing up the producer.
var ErrBusFull = errors.New("events: dispatch channel full, event dropped")

// Subscription is a live registration returned by Subscribe. Events land on
// C in emission order; the caller must drain C or risk drops.
type Subscription struct {
	id     int64
	types  map[Type]bool
	C      <-chan Event
	ch     chan Event
	bus    *Bus
	closed atomic.Bool
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.bus.unsubscribe(s)
}

func (s *Subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	return s.types[t]
}

// Bus is the process-wide event bus. Zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int64]*Subscription
	nextSubID   int64

	eventCh  chan Event
	sequence int64

	logger  *slog.Logger
	metrics *Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Bus. Call Start before publishing.
func New(logger *slog.Logger, metrics *Metrics) *Bus {
	return &Bus{
		subscribers: make(map[int64]*Subscription),
		eventCh:     make(chan Event, 1000),
		logger:      logger.With("component", "event_bus"),
		metrics:     metrics,
		stopCh:      make(chan struct{}),
	}
}

// Subscribe registers a new subscriber. If types is empty, all event types
// are delivered.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	ch := make(chan Event, 256)
	set := make(map[Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	sub := &Subscription{id: b.nextSubID, types: set, C: ch, ch: ch, bus: b}
	b.subscribers[sub.id] = sub

	if b.metrics != nil {
		b.metrics.SubscribersActive.Set(float64(len(b.subscribers)))
	}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.ch)
	}
	if b.metrics != nil {
		b.metrics.SubscribersActive.Set(float64(len(b.subscribers)))
	}
}

// Publish enqueues an event for asynchronous, non-blocking dispatch. The
// caller's Sequence field is overwritten with the bus's own counter.
func (b *Bus) Publish(event Event) error {
	event.Sequence = atomic.AddInt64(&b.sequence, 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.eventCh <- event:
		return nil
	default:
		b.logger.Warn("event bus full, dropping event", "type", event.Type, "plugin", event.PluginName)
		if b.metrics != nil {
			b.metrics.EventsDropped.Inc()
		}
		return ErrBusFull
	}
}

// ActiveSubscribers returns the current subscriber count.
func (b *Bus) ActiveSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Start launches the dispatch worker. Safe to call once.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.dispatchLoop(ctx)
}

// Stop drains in-flight dispatch and closes all subscriber channels.
func (b *Bus) Stop(ctx context.Context) error {
	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.mu.Lock()
		for id, sub := range b.subscribers {
			close(sub.ch)
			delete(b.subscribers, id)
		}
		b.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLoop processes events serially from eventCh, which is what
// guarantees per-subscriber in-order delivery: a subscriber only ever
// observes events in the order the producer published them, because the
// next event isn't dispatched until this one's fan-out has been attempted
// for every subscriber.
func (b *Bus) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case event := <-b.eventCh:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event Event) {
	start := time.Now()

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.wants(event.Type) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				"subscriber_id", sub.id, "type", event.Type, "plugin", event.PluginName)
			if b.metrics != nil {
				b.metrics.EventsDropped.Inc()
			}
		}
	}

	if b.metrics != nil {
		b.metrics.EventsTotal.WithLabelValues(string(event.Type)).Inc()
		b.metrics.DispatchSeconds.Observe(time.Since(start).Seconds())
	}
}
