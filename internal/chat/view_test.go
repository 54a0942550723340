package chat

import (
	"context"
	"testing"
	"time"

	"github.com/squadspace/backend/internal/livesync"
)

func waitForMessages(t *testing.T, view *ChannelView, want int) []MessageRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		messages := view.Messages()
		if len(messages) == want {
			return messages
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, have %d", want, len(view.Messages()))
	return nil
}

func openTestView(t *testing.T, service *Service, feed *livesync.Feed, channelID ChannelID, user string) *ChannelView {
	t.Helper()
	view, err := OpenChannelView(context.Background(), ChannelViewConfig{
		ChannelID:   channelID,
		CurrentUser: user,
		Service:     service,
		Feed:        feed,
	})
	if err != nil {
		t.Fatalf("failed to open channel view: %v", err)
	}
	t.Cleanup(view.Close)
	return view
}

func TestChannelViewSendReconcilesOptimisticRecord(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)
	channel := mustChannel(t, service)
	channelID, _ := NewChannelID(channel.ChannelID)

	view := openTestView(t, service, feed, channelID, "user-alpha")

	confirmed, err := view.Send(context.Background(), "optimistic hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if livesync.IsTempID(confirmed.MessageID) {
		t.Fatalf("expected confirmed id, got %s", confirmed.MessageID)
	}

	messages := waitForMessages(t, view, 1)
	if messages[0].MessageID != confirmed.MessageID {
		t.Fatalf("expected store to hold confirmed row, got %s", messages[0].MessageID)
	}

	// The feed delivery of the same write must not produce a second row.
	time.Sleep(50 * time.Millisecond)
	if got := len(view.Messages()); got != 1 {
		t.Fatalf("dual delivery duplicated the message: %d rows", got)
	}
}

func TestChannelViewReceivesForeignMessages(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)
	channel := mustChannel(t, service)
	channelID, _ := NewChannelID(channel.ChannelID)

	view := openTestView(t, service, feed, channelID, "user-alpha")

	foreign, err := service.SendMessage(context.Background(), channelID, "user-beta", "from elsewhere", "")
	if err != nil {
		t.Fatalf("foreign send failed: %v", err)
	}

	messages := waitForMessages(t, view, 1)
	if messages[0].MessageID != foreign.MessageID {
		t.Fatalf("expected foreign message in store, got %s", messages[0].MessageID)
	}
	if messages[0].SenderID != "user-beta" {
		t.Fatalf("unexpected sender %s", messages[0].SenderID)
	}
}

func TestChannelViewMergesReactionEvents(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)
	channel := mustChannel(t, service)
	channelID, _ := NewChannelID(channel.ChannelID)

	record, err := service.SendMessage(context.Background(), channelID, "user-alpha", "react here", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	view := openTestView(t, service, feed, channelID, "user-alpha")
	waitForMessages(t, view, 1)

	if _, err := service.AddReaction(context.Background(), record.MessageID, "user-beta", "🎉"); err != nil {
		t.Fatalf("reaction failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		messages := view.Messages()
		if len(messages) == 1 && len(messages[0].Reactions) == 1 {
			if messages[0].Reactions[0].Emoji != "🎉" {
				t.Fatalf("unexpected reaction %#v", messages[0].Reactions[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reaction never reached the view")
}

func TestChannelViewLoadsExistingHistory(t *testing.T) {
	feed := livesync.NewFeed()
	defer feed.Close()
	service := newTestService(t, feed)
	channel := mustChannel(t, service)
	channelID, _ := NewChannelID(channel.ChannelID)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := service.SendMessage(context.Background(), channelID, "user-alpha", content, ""); err != nil {
			t.Fatalf("seed send failed: %v", err)
		}
	}

	view := openTestView(t, service, feed, channelID, "user-alpha")
	messages := view.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected history of 3, got %d", len(messages))
	}
	if messages[0].Content != "one" || messages[2].Content != "three" {
		t.Fatalf("unexpected order %q..%q", messages[0].Content, messages[2].Content)
	}
}

func TestChannelViewReportsClosedFeed(t *testing.T) {
	feed := livesync.NewFeed()
	service := newTestService(t, feed)
	channel := mustChannel(t, service)
	channelID, _ := NewChannelID(channel.ChannelID)

	view := openTestView(t, service, feed, channelID, "user-alpha")
	if view.Status() != livesync.StatusOpen {
		t.Fatalf("expected open subscription, got %s", view.Status())
	}

	feed.Close()

	select {
	case <-view.Reconnected():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected binding to drain after feed close")
	}
	if view.Status() != livesync.StatusClosed {
		t.Fatalf("expected closed subscription, got %s", view.Status())
	}
}
