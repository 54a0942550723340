package notifications

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/squadspace/backend/internal/database"
	"github.com/squadspace/backend/internal/livesync"
)

func newTestService(t *testing.T, feed *livesync.Feed) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:notifications_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil, &Notification{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Feed:       feed,
		IDProvider: livesync.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)

	subscription := feed.Subscribe(context.Background(), FeedTableNotifications, "user-a")
	defer subscription.Close()

	notification, err := service.Notify(context.Background(), "user-a", "mention", "alpha mentioned you", "squad-1", "message-9")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	select {
	case event := <-subscription.Events():
		if event.Kind != livesync.EventInsert || event.RowID != notification.NotificationID {
			t.Fatalf("unexpected event %#v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a tray event")
	}

	list, err := service.ListForUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0].Kind != "mention" {
		t.Fatalf("unexpected listing %#v", list)
	}
}

func TestNotifyIsScopedToRecipient(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)

	other := feed.Subscribe(context.Background(), FeedTableNotifications, "user-b")
	defer other.Close()

	if _, err := service.Notify(context.Background(), "user-a", "rsvp", "event filling up", "squad-1", "event-4"); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	select {
	case event := <-other.Events():
		t.Fatalf("user-b should not see user-a's notification, got %#v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarkReadRequiresRecipient(t *testing.T) {
	service := newTestService(t, nil)

	notification, err := service.Notify(context.Background(), "user-a", "poll", "new poll", "squad-1", "poll-2")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if err := service.MarkRead(context.Background(), notification.NotificationID, "user-b"); !errors.Is(err, livesync.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := service.MarkRead(context.Background(), notification.NotificationID, "user-a"); err != nil {
		t.Fatalf("recipient mark read failed: %v", err)
	}

	list, err := service.ListForUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !list[0].IsRead {
		t.Fatalf("expected notification marked read")
	}
}

func TestMarkAllRead(t *testing.T) {
	service := newTestService(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := service.Notify(context.Background(), "user-a", "mention", fmt.Sprintf("ping %d", i), "squad-1", ""); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}
	if err := service.MarkAllRead(context.Background(), "user-a"); err != nil {
		t.Fatalf("mark all read failed: %v", err)
	}

	list, err := service.ListForUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, notification := range list {
		if !notification.IsRead {
			t.Fatalf("expected all read, found unread %s", notification.NotificationID)
		}
	}
}

func TestTrayReceivesPushesAndCountsUnread(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)

	seeded, err := service.Notify(context.Background(), "user-a", "mention", "before mount", "squad-1", "")
	if err != nil {
		t.Fatalf("seed notify failed: %v", err)
	}

	tray, err := OpenTray(context.Background(), service, feed, "user-a", nil)
	if err != nil {
		t.Fatalf("failed to open tray: %v", err)
	}
	defer tray.Close()

	if tray.Unread() != 1 {
		t.Fatalf("expected one unread after load, got %d", tray.Unread())
	}

	if _, err := service.Notify(context.Background(), "user-a", "event", "live push", "squad-1", ""); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(tray.Notifications()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(tray.Notifications()); got != 2 {
		t.Fatalf("expected pushed notification in tray, have %d", got)
	}
	if tray.Unread() != 2 {
		t.Fatalf("expected two unread, got %d", tray.Unread())
	}

	if err := tray.MarkRead(context.Background(), seeded.NotificationID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if tray.Unread() != 1 {
		t.Fatalf("expected one unread after mark read, got %d", tray.Unread())
	}
}
