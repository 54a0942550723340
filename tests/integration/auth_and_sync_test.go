package integration_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/squadspace/backend/internal/auth"
	"github.com/squadspace/backend/internal/boards"
	"github.com/squadspace/backend/internal/chat"
	"github.com/squadspace/backend/internal/database"
	"github.com/squadspace/backend/internal/events"
	"github.com/squadspace/backend/internal/gaming"
	"github.com/squadspace/backend/internal/identity"
	"github.com/squadspace/backend/internal/livesync"
	"github.com/squadspace/backend/internal/notifications"
	"github.com/squadspace/backend/internal/polls"
	"github.com/squadspace/backend/internal/server"
)

const (
	signingSecret   = "integration-secret"
	jsonContentType = "application/json"
)

func buildStack(t *testing.T) (http.Handler, *livesync.Feed) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil,
		&identity.Profile{},
		&chat.Channel{},
		&chat.Message{},
		&chat.Reaction{},
		&notifications.Notification{},
		&boards.Board{},
		&boards.BoardColumn{},
		&boards.Task{},
		&events.Event{},
		&events.EventParticipant{},
		&gaming.LFGPost{},
		&gaming.LFGParticipant{},
		&polls.Poll{},
		&polls.PollOption{},
		&polls.PollVote{},
	)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	feed := livesync.NewFeed()
	t.Cleanup(feed.Close)
	ids := livesync.NewUUIDProvider()

	identityService, err := identity.NewService(identity.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("identity service: %v", err)
	}
	chatService, err := chat.NewService(chat.ServiceConfig{Database: db, Feed: feed, Profiles: identityService, IDProvider: ids})
	if err != nil {
		t.Fatalf("chat service: %v", err)
	}
	notificationService, err := notifications.NewService(notifications.ServiceConfig{Database: db, Feed: feed, IDProvider: ids})
	if err != nil {
		t.Fatalf("notification service: %v", err)
	}
	boardService, err := boards.NewService(boards.ServiceConfig{Database: db, Feed: feed, IDProvider: ids})
	if err != nil {
		t.Fatalf("board service: %v", err)
	}
	eventService, err := events.NewService(events.ServiceConfig{Database: db, Feed: feed, IDProvider: ids})
	if err != nil {
		t.Fatalf("event service: %v", err)
	}
	gamingService, err := gaming.NewService(gaming.ServiceConfig{Database: db, IDProvider: ids})
	if err != nil {
		t.Fatalf("gaming service: %v", err)
	}
	pollService, err := polls.NewService(polls.ServiceConfig{Database: db, Feed: feed, IDProvider: ids})
	if err != nil {
		t.Fatalf("poll service: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "squadspace-auth",
		Audience:      "squadspace-api",
		TokenTTL:      time.Hour,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  issuer,
		Identity:      identityService,
		Chat:          chatService,
		Notifications: notificationService,
		Boards:        boardService,
		Events:        eventService,
		Gaming:        gamingService,
		Polls:         pollService,
		Feed:          feed,
	})
	if err != nil {
		t.Fatalf("http handler: %v", err)
	}
	return handler, feed
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any, target any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if target != nil {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return response
}

func TestAuthAndLiveSyncFlow(t *testing.T) {
	handler, _ := buildStack(t)
	testServer := httptest.NewServer(handler)
	defer testServer.Close()
	client := testServer.Client()

	var session struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	response := postJSON(t, client, testServer.URL+"/auth/session", "", map[string]string{
		"user_id":  "user-alpha",
		"username": "alpha",
	}, &session)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("session failed with status %d", response.StatusCode)
	}
	if session.AccessToken == "" {
		t.Fatalf("expected access token")
	}

	var channel struct {
		ChannelID string `json:"ChannelID"`
	}
	response = postJSON(t, client, testServer.URL+"/channels", session.AccessToken, map[string]string{
		"squad_id": "squad-1",
		"name":     "general",
	}, &channel)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create channel failed with status %d", response.StatusCode)
	}

	// Open the live stream before writing so the insert is delivered.
	streamCtx, cancelStream := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStream()
	streamRequest, err := http.NewRequestWithContext(streamCtx, http.MethodGet,
		testServer.URL+"/realtime/messages/"+channel.ChannelID, http.NoBody)
	if err != nil {
		t.Fatalf("failed to build stream request: %v", err)
	}
	streamRequest.Header.Set("Authorization", "Bearer "+session.AccessToken)
	streamResponse, err := client.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer streamResponse.Body.Close()
	if contentType := streamResponse.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected stream content type %q", contentType)
	}

	received := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(streamResponse.Body)
		for scanner.Scan() {
			received <- scanner.Text()
		}
		close(received)
	}()

	// First frame is the subscription status.
	waitForLine(t, received, "event:status")

	postJSON(t, client, testServer.URL+"/channels/"+channel.ChannelID+"/messages", session.AccessToken, map[string]string{
		"content": "hello from the wire",
	}, nil)

	waitForLine(t, received, "event:change")
	data := waitForLinePrefix(t, received, "data:")
	if !strings.Contains(data, "hello from the wire") {
		t.Fatalf("expected message payload in stream, got %q", data)
	}
	if !strings.Contains(data, `"kind":"insert"`) {
		t.Fatalf("expected insert event, got %q", data)
	}
}

func waitForLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	deadline := time.After(4 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q", want)
			}
			if strings.TrimSpace(line) == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func waitForLinePrefix(t *testing.T, lines <-chan string, prefix string) string {
	t.Helper()
	deadline := time.After(4 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q line", prefix)
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q line", prefix)
		}
	}
}
