package mongochat

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/ledger"
)

func TestStore_RecentMessagesOldestFirst(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set; skipping MongoDB chat store tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, uri, "fintrack_test")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(ctx)

	user := uuid.New()
	defer s.ClearMessages(ctx, user)
	for _, content := range []string{"one", "two", "three"} {
		m := ledger.ChatMessage{ID: uuid.New(), UserID: user, Role: ledger.RoleUser, Content: content, CreatedAt: time.Now().UTC()}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.RecentMessages(ctx, user, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Content != "two" || got[1].Content != "three" {
		t.Fatalf("unexpected history: %+v", got)
	}
	if err := s.ClearMessages(ctx, user); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := s.RecentMessages(ctx, user, 10); len(got) != 0 {
		t.Fatalf("history should be empty, got %d", len(got))
	}
}
