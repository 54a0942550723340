package livesync

import (
	"context"
	"testing"
	"time"
)

func TestFeedPublishesToSubscribedScope(t *testing.T) {
	feed := NewFeed()
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscription := feed.Subscribe(ctx, "messages", "channel-1")
	if subscription.Status() != StatusOpen {
		t.Fatalf("expected open subscription, got %s", subscription.Status())
	}

	feed.Publish(Event{
		Kind:      EventInsert,
		Table:     "messages",
		Scope:     "channel-1",
		RowID:     "m-1",
		Timestamp: time.Now().UTC(),
	})

	select {
	case event := <-subscription.Events():
		if event.RowID != "m-1" || event.Kind != EventInsert {
			t.Fatalf("unexpected event: %#v", event)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected change event within deadline")
	}
}

func TestFeedIsolatesScopes(t *testing.T) {
	feed := NewFeed()
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channelOne := feed.Subscribe(ctx, "messages", "channel-1")
	channelTwo := feed.Subscribe(ctx, "messages", "channel-2")

	feed.Publish(Event{Kind: EventInsert, Table: "messages", Scope: "channel-2", RowID: "m-7"})

	select {
	case <-channelOne.Events():
		t.Fatal("did not expect event for unrelated scope")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case event := <-channelTwo.Events():
		if event.Scope != "channel-2" {
			t.Fatalf("expected channel-2 event, got %s", event.Scope)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event for subscribed scope")
	}
}

func TestFeedCloseSurfacesClosedStatus(t *testing.T) {
	feed := NewFeed()
	subscription := feed.Subscribe(context.Background(), "notifications", "user-1")

	feed.Close()

	if subscription.Status() != StatusClosed {
		t.Fatalf("expected closed status after feed shutdown, got %s", subscription.Status())
	}
	select {
	case _, open := <-subscription.Events():
		if open {
			t.Fatal("expected events channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected events channel to close promptly")
	}

	late := feed.Subscribe(context.Background(), "notifications", "user-1")
	if late.Status() != StatusClosed {
		t.Fatalf("expected subscriptions after shutdown to start closed, got %s", late.Status())
	}
}

func TestFeedUnsubscribesOnContextCancel(t *testing.T) {
	feed := NewFeed()
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())

	subscription := feed.Subscribe(ctx, "messages", "channel-1")
	cancel()

	deadline := time.After(2 * time.Second)
	for subscription.Status() != StatusClosed {
		select {
		case <-deadline:
			t.Fatal("expected subscription to close after context cancellation")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Publishing after teardown must not deliver or panic.
	feed.Publish(Event{Kind: EventInsert, Table: "messages", Scope: "channel-1", RowID: "m-1"})
}
