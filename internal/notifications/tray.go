package notifications

import (
	"context"

	"github.com/squadspace/backend/internal/livesync"
	"go.uber.org/zap"
)

const opOpenTray = "notifications.tray.open"

// TrayView keeps a user's notification list current against their tray
// feed. Unlike chat there are no optimistic writes here; the tray only
// receives pushes and local read-state patches.
type TrayView struct {
	userID       string
	service      *Service
	store        *livesync.Store[Notification]
	subscription *livesync.Subscription
	binding      *livesync.Binding[Notification]
}

// OpenTray loads the user's notifications and subscribes to their feed.
func OpenTray(ctx context.Context, service *Service, feed *livesync.Feed, userID string, logger *zap.Logger) (*TrayView, error) {
	if service == nil || feed == nil {
		return nil, newServiceError(opOpenTray, "missing_dependency", errMissingDatabase)
	}
	if userID == "" {
		return nil, newServiceError(opOpenTray, "unauthenticated", livesync.ErrUnauthenticated)
	}

	store := livesync.NewStore[Notification]()
	current, err := service.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, notification := range current {
		store.Append(notification)
	}

	subscription := feed.Subscribe(ctx, FeedTableNotifications, userID)
	binding, err := livesync.NewBinding(livesync.BindingConfig[Notification]{
		Store:        store,
		Subscription: subscription,
		DecodeInsert: func(event livesync.Event) (Notification, bool) {
			notification, ok := event.Payload.(Notification)
			if !ok || notification.UserID != userID {
				return Notification{}, false
			}
			return notification, true
		},
		Logger: logger,
	})
	if err != nil {
		subscription.Close()
		return nil, newServiceError(opOpenTray, "binding_failed", err)
	}
	go binding.Run()

	return &TrayView{
		userID:       userID,
		service:      service,
		store:        store,
		subscription: subscription,
		binding:      binding,
	}, nil
}

// Notifications returns the tray contents in arrival order.
func (t *TrayView) Notifications() []Notification {
	return t.store.All()
}

// Unread counts notifications not yet marked read.
func (t *TrayView) Unread() int {
	count := 0
	for _, notification := range t.store.All() {
		if !notification.IsRead {
			count++
		}
	}
	return count
}

// MarkRead persists the read flag and patches the local entry.
func (t *TrayView) MarkRead(ctx context.Context, notificationID string) error {
	if err := t.service.MarkRead(ctx, notificationID, t.userID); err != nil {
		return err
	}
	t.store.PatchByID(notificationID, func(notification Notification) Notification {
		notification.IsRead = true
		return notification
	})
	return nil
}

// Status reports the feed subscription state.
func (t *TrayView) Status() livesync.SubscriptionStatus {
	return t.subscription.Status()
}

// Close tears down the subscription.
func (t *TrayView) Close() {
	t.subscription.Close()
}
