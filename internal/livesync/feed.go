package livesync

import (
	"context"
	"sync"
	"time"
)

// EventKind enumerates change feed event types.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// SubscriptionStatus tracks the lifecycle of one change feed subscription.
type SubscriptionStatus string

const (
	StatusConnecting SubscriptionStatus = "connecting"
	StatusOpen       SubscriptionStatus = "open"
	StatusClosed     SubscriptionStatus = "closed"
)

// Event is one inbound change feed message for a (table, scope) pair.
// Payload carries the full denormalized row for inserts and the delta for
// updates; RowID always identifies the affected row.
type Event struct {
	Kind      EventKind
	Table     string
	Scope     string
	RowID     string
	Payload   any
	Timestamp time.Time
}

// Subscription is one open change feed connection. When the feed shuts down
// the events channel is closed and Status reports StatusClosed; no missed
// events are buffered across the gap, so the owning view must re-fetch its
// scope after resubscribing.
type Subscription struct {
	id     int64
	table  string
	scope  string
	mu     sync.Mutex
	status SubscriptionStatus
	events chan Event
	cancel func()
}

// Events returns the inbound event stream.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Status reports the current subscription state.
func (s *Subscription) Status() SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close tears the subscription down. It is safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

func (s *Subscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return
	}
	select {
	case s.events <- event:
	default:
	}
}

func (s *Subscription) markOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConnecting {
		s.status = StatusOpen
	}
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return
	}
	s.status = StatusClosed
	close(s.events)
}

type topicKey struct {
	table string
	scope string
}

// Feed fans change events out to subscriptions keyed by (table, scope).
// Publishing never blocks: a subscriber that cannot keep up drops events,
// matching the at-least-once-while-open, no-replay contract of the
// transport.
type Feed struct {
	mu         sync.RWMutex
	topics     map[topicKey]map[int64]*Subscription
	nextID     int64
	bufferSize int
	closed     bool
}

const defaultFeedBuffer = 16

// NewFeed constructs an in-process change feed dispatcher with the default
// per-subscription buffer.
func NewFeed() *Feed {
	return NewFeedWithBuffer(defaultFeedBuffer)
}

// NewFeedWithBuffer constructs a feed whose subscriptions buffer up to size
// events before dropping. Non-positive sizes fall back to the default.
func NewFeedWithBuffer(size int) *Feed {
	if size <= 0 {
		size = defaultFeedBuffer
	}
	return &Feed{
		topics:     make(map[topicKey]map[int64]*Subscription),
		bufferSize: size,
	}
}

// Subscribe opens a subscription for the (table, scope) pair. The
// subscription closes when ctx is cancelled, when Close is called on the
// handle, or when the feed shuts down.
func (f *Feed) Subscribe(ctx context.Context, table, scope string) *Subscription {
	subscription := &Subscription{
		id:     f.nextSequence(),
		table:  table,
		scope:  scope,
		status: StatusConnecting,
		events: make(chan Event, f.bufferSize),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		subscription.cancel = func() {}
		subscription.markClosed()
		return subscription
	}
	key := topicKey{table: table, scope: scope}
	if _, ok := f.topics[key]; !ok {
		f.topics[key] = make(map[int64]*Subscription)
	}
	f.topics[key][subscription.id] = subscription
	f.mu.Unlock()

	subscription.markOpen()

	var once sync.Once
	subscription.cancel = func() {
		once.Do(func() {
			f.unregister(key, subscription.id)
			subscription.markClosed()
		})
	}
	go func() {
		<-ctx.Done()
		subscription.cancel()
	}()

	return subscription
}

// Publish delivers the event to every open subscription on its topic.
func (f *Feed) Publish(event Event) {
	if event.Table == "" || event.Kind == "" {
		return
	}
	f.mu.RLock()
	subscriptions := f.topics[topicKey{table: event.Table, scope: event.Scope}]
	copies := make([]*Subscription, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		copies = append(copies, subscription)
	}
	f.mu.RUnlock()

	for _, subscription := range copies {
		subscription.deliver(event)
	}
}

// Close shuts the feed down and marks every subscription closed so owning
// views can surface a reconnecting state.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	var all []*Subscription
	for _, subscriptions := range f.topics {
		for _, subscription := range subscriptions {
			all = append(all, subscription)
		}
	}
	f.topics = make(map[topicKey]map[int64]*Subscription)
	f.mu.Unlock()

	for _, subscription := range all {
		subscription.markClosed()
	}
}

func (f *Feed) nextSequence() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *Feed) unregister(key topicKey, id int64) {
	f.mu.Lock()
	subscriptions := f.topics[key]
	if subscriptions != nil {
		delete(subscriptions, id)
		if len(subscriptions) == 0 {
			delete(f.topics, key)
		}
	}
	f.mu.Unlock()
}
