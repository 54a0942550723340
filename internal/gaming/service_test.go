package gaming

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/squadspace/backend/internal/database"
	"github.com/squadspace/backend/internal/livesync"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:gaming_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil, &LFGPost{}, &LFGParticipant{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: livesync.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestCreatePostSeatsCreator(t *testing.T) {
	service := newTestService(t)

	post, err := service.CreatePost(context.Background(), "squad-1", "user-host", "Helldivers", "two more for a full squad", 4)
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}

	count, err := service.ParticipantCount(context.Background(), post.PostID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected creator seated, got %d participants", count)
	}
}

func TestJoinDeniesWhenFull(t *testing.T) {
	service := newTestService(t)

	post, err := service.CreatePost(context.Background(), "squad-1", "user-host", "Valorant", "", 2)
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}

	if _, err := service.Join(context.Background(), post.PostID, "user-b"); err != nil {
		t.Fatalf("second seat should be free: %v", err)
	}

	_, err = service.Join(context.Background(), post.PostID, "user-c")
	if !errors.Is(err, livesync.ErrCapacityExceeded) {
		t.Fatalf("expected capacity denial, got %v", err)
	}

	count, err := service.ParticipantCount(context.Background(), post.PostID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("denied join must not write a row, got %d participants", count)
	}
}

func TestJoinUncappedPost(t *testing.T) {
	service := newTestService(t)

	post, err := service.CreatePost(context.Background(), "squad-1", "user-host", "Minecraft", "", 0)
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := service.Join(context.Background(), post.PostID, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatalf("uncapped join failed: %v", err)
		}
	}
}

func TestJoinTwiceSurfacesConflict(t *testing.T) {
	service := newTestService(t)

	post, err := service.CreatePost(context.Background(), "squad-1", "user-host", "Rocket League", "", 3)
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}

	if _, err := service.Join(context.Background(), post.PostID, "user-b"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	_, err = service.Join(context.Background(), post.PostID, "user-b")
	if !errors.Is(err, livesync.ErrConflict) {
		t.Fatalf("expected conflict for duplicate join, got %v", err)
	}
}

func TestJoinUnknownPost(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Join(context.Background(), "no-such-post", "user-a"); !errors.Is(err, livesync.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLeaveFreesSeat(t *testing.T) {
	service := newTestService(t)

	post, err := service.CreatePost(context.Background(), "squad-1", "user-host", "Overwatch", "", 2)
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	if _, err := service.Join(context.Background(), post.PostID, "user-b"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := service.Join(context.Background(), post.PostID, "user-c"); !errors.Is(err, livesync.ErrCapacityExceeded) {
		t.Fatalf("expected full post, got %v", err)
	}

	if err := service.Leave(context.Background(), post.PostID, "user-b"); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if _, err := service.Join(context.Background(), post.PostID, "user-c"); err != nil {
		t.Fatalf("seat should be free after leave: %v", err)
	}

	if err := service.Leave(context.Background(), post.PostID, "user-b"); !errors.Is(err, livesync.ErrNotFound) {
		t.Fatalf("expected not found for repeated leave, got %v", err)
	}
}

func TestListPostsNewestFirst(t *testing.T) {
	service := newTestService(t)

	clockSeconds := time.Date(2026, time.June, 1, 18, 0, 0, 0, time.UTC).Unix()
	tick := 0
	service.clock = func() time.Time {
		tick++
		return time.Unix(clockSeconds+int64(tick), 0).UTC()
	}

	for i := 0; i < 3; i++ {
		if _, err := service.CreatePost(context.Background(), "squad-1", "user-host", fmt.Sprintf("Game %d", i), "", 0); err != nil {
			t.Fatalf("create post failed: %v", err)
		}
	}

	posts, err := service.ListPosts(context.Background(), "squad-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("expected three posts, got %d", len(posts))
	}
	if posts[0].Game != "Game 2" {
		t.Fatalf("expected newest post first, got %q", posts[0].Game)
	}
}
