package chat

import (
	"context"
	"errors"
	"time"

	"github.com/squadspace/backend/internal/livesync"
	"go.uber.org/zap"
)

var errMissingService = errors.New("chat service is required")

const opOpenChannelView = "chat.channel_view.open"

// Correlation window for recognizing the local user's own write arriving
// through the feed before the mutation response: the temp id is unknown to
// the feed, so sender, content, and a recent timestamp stand in for it.
const correlationWindow = 10 * time.Second

// ChannelViewConfig wires one mounted channel view.
type ChannelViewConfig struct {
	ChannelID   ChannelID
	CurrentUser string
	Service     *Service
	Feed        *livesync.Feed
	IDProvider  livesync.IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
}

// ChannelView keeps one channel's message list consistent with the backend
// store, the change feed, and the local user's in-flight sends. It owns its
// record store exclusively; closing the view tears the subscription down.
type ChannelView struct {
	channelID    ChannelID
	currentUser  string
	service      *Service
	store        *livesync.Store[MessageRecord]
	mutator      *livesync.Mutator[MessageRecord]
	subscription *livesync.Subscription
	binding      *livesync.Binding[MessageRecord]
	clock        func() time.Time
}

// OpenChannelView loads the channel's current messages, subscribes to its
// change feed, and starts applying events.
func OpenChannelView(ctx context.Context, cfg ChannelViewConfig) (*ChannelView, error) {
	if cfg.Service == nil {
		return nil, newServiceError(opOpenChannelView, "missing_service", errMissingService)
	}
	if cfg.Feed == nil {
		return nil, newServiceError(opOpenChannelView, "missing_feed", errMissingService)
	}
	if cfg.CurrentUser == "" {
		return nil, newServiceError(opOpenChannelView, "unauthenticated", livesync.ErrUnauthenticated)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = livesync.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	store := livesync.NewStore[MessageRecord]()
	mutator, err := livesync.NewMutator(livesync.MutatorConfig[MessageRecord]{
		Store:      store,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, newServiceError(opOpenChannelView, "mutator_failed", err)
	}

	records, err := cfg.Service.ListMessages(ctx, cfg.ChannelID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		store.Append(record)
	}

	subscription := cfg.Feed.Subscribe(ctx, FeedTableMessages, cfg.ChannelID.String())
	view := &ChannelView{
		channelID:    cfg.ChannelID,
		currentUser:  cfg.CurrentUser,
		service:      cfg.Service,
		store:        store,
		mutator:      mutator,
		subscription: subscription,
		clock:        clock,
	}

	binding, err := livesync.NewBinding(livesync.BindingConfig[MessageRecord]{
		Store:        store,
		Subscription: subscription,
		DecodeInsert: view.decodeInsert,
		MergeUpdate:  mergeReaction,
		Correlate:    view.correlateOwnWrite,
		Logger:       cfg.Logger,
	})
	if err != nil {
		subscription.Close()
		return nil, newServiceError(opOpenChannelView, "binding_failed", err)
	}
	view.binding = binding
	go binding.Run()

	return view, nil
}

// Send stages an optimistic message and reconciles it with the backend's
// confirmed row. On failure the tentative message disappears and the error
// is returned for display.
func (v *ChannelView) Send(ctx context.Context, content string) (MessageRecord, error) {
	return v.mutator.Do(ctx,
		func(tempID string, stagedAt time.Time) MessageRecord {
			return MessageRecord{Message: Message{
				MessageID:        tempID,
				ChannelID:        v.channelID.String(),
				SenderID:         v.currentUser,
				Content:          content,
				CreatedAtSeconds: stagedAt.Unix(),
			}}
		},
		func(ctx context.Context) (MessageRecord, error) {
			return v.service.SendMessage(ctx, v.channelID, v.currentUser, content, "")
		})
}

// Messages returns the view's messages in display order.
func (v *ChannelView) Messages() []MessageRecord {
	return v.store.All()
}

// Status reports the change feed subscription state so the view can show a
// reconnecting affordance.
func (v *ChannelView) Status() livesync.SubscriptionStatus {
	return v.subscription.Status()
}

// Reconnected is closed once the subscription has drained; the owner should
// reopen the view to re-fetch state, since missed events are not replayed.
func (v *ChannelView) Reconnected() <-chan struct{} {
	return v.binding.Done()
}

// Close tears down the subscription.
func (v *ChannelView) Close() {
	v.subscription.Close()
}

func (v *ChannelView) decodeInsert(event livesync.Event) (MessageRecord, bool) {
	record, ok := event.Payload.(MessageRecord)
	if !ok || record.ChannelID != v.channelID.String() {
		return MessageRecord{}, false
	}
	return record, true
}

func (v *ChannelView) correlateOwnWrite(existing, incoming MessageRecord) bool {
	if existing.SenderID != v.currentUser || incoming.SenderID != v.currentUser {
		return false
	}
	if existing.Content != incoming.Content {
		return false
	}
	delta := existing.RecordCreatedAt().Sub(incoming.RecordCreatedAt())
	if delta < 0 {
		delta = -delta
	}
	return delta <= correlationWindow
}

func mergeReaction(existing MessageRecord, event livesync.Event) MessageRecord {
	reaction, ok := event.Payload.(Reaction)
	if !ok {
		return existing
	}
	for _, held := range existing.Reactions {
		if held.ReactionID == reaction.ReactionID {
			return existing
		}
	}
	existing.Reactions = append(existing.Reactions, reaction)
	return existing
}
