package livesync

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	errMissingSubscription = errors.New("subscription is required")
	errMissingDecodeFunc   = errors.New("insert decoder is required")
)

const opBindingNew = "livesync.binding.new"

// BindingConfig wires one subscription to one record store. DecodeInsert
// turns an insert event into the full record (returning false when the
// event does not belong to the view). MergeUpdate folds an update delta
// into the stored record without replacing it, so unrelated local state on
// that record survives. Correlate recognizes the local user's own write
// arriving through the feed before the mutation response does: when it
// matches a tentative record, the tentative entry is replaced in place.
type BindingConfig[R Record] struct {
	Store        *Store[R]
	Subscription *Subscription
	DecodeInsert func(Event) (R, bool)
	MergeUpdate  func(R, Event) R
	Correlate    func(existing, incoming R) bool
	Logger       *zap.Logger
}

// Binding applies inbound change feed events to a record store. Exactly one
// binding may run per (scope, filter) pair per view; a duplicate binding
// means duplicate event delivery and is a bug in the owning view.
type Binding[R Record] struct {
	store        *Store[R]
	subscription *Subscription
	decodeInsert func(Event) (R, bool)
	mergeUpdate  func(R, Event) R
	correlate    func(existing, incoming R) bool
	logger       *zap.Logger
	done         chan struct{}
}

// NewBinding validates the configuration and constructs a Binding.
func NewBinding[R Record](cfg BindingConfig[R]) (*Binding[R], error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%s: %w", opBindingNew, errMissingStore)
	}
	if cfg.Subscription == nil {
		return nil, fmt.Errorf("%s: %w", opBindingNew, errMissingSubscription)
	}
	if cfg.DecodeInsert == nil {
		return nil, fmt.Errorf("%s: %w", opBindingNew, errMissingDecodeFunc)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Binding[R]{
		store:        cfg.Store,
		subscription: cfg.Subscription,
		decodeInsert: cfg.DecodeInsert,
		mergeUpdate:  cfg.MergeUpdate,
		correlate:    cfg.Correlate,
		logger:       logger,
		done:         make(chan struct{}),
	}, nil
}

// Run drains the subscription until it closes, applying each event to the
// store. Events are applied one at a time, in arrival order.
func (b *Binding[R]) Run() {
	defer close(b.done)
	for event := range b.subscription.Events() {
		b.apply(event)
	}
}

// Done is closed once the subscription has drained, letting the owning view
// surface a reconnecting affordance and schedule a re-fetch.
func (b *Binding[R]) Done() <-chan struct{} {
	return b.done
}

func (b *Binding[R]) apply(event Event) {
	switch event.Kind {
	case EventInsert:
		b.applyInsert(event)
	case EventUpdate:
		b.applyUpdate(event)
	case EventDelete:
		b.store.RemoveByID(event.RowID)
	default:
		b.logger.Warn("unknown change feed event kind",
			zap.String("kind", string(event.Kind)),
			zap.String("table", event.Table))
	}
}

func (b *Binding[R]) applyInsert(event Event) {
	incoming, ok := b.decodeInsert(event)
	if !ok {
		return
	}
	if _, present := b.store.Get(incoming.RecordID()); present {
		return
	}
	if b.correlate != nil {
		tentative, found := b.store.FindBy(func(existing R) bool {
			return IsTempID(existing.RecordID()) && b.correlate(existing, incoming)
		})
		if found {
			b.store.Replace(tentative.RecordID(), incoming)
			return
		}
	}
	b.store.Append(incoming)
}

func (b *Binding[R]) applyUpdate(event Event) {
	if b.mergeUpdate == nil {
		return
	}
	b.store.PatchByID(event.RowID, func(existing R) R {
		return b.mergeUpdate(existing, event)
	})
}
