package redis

import (
	"context"
	"errors"
	"testing"

	"clicker-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestKeyEventFeedSharesLatestPress(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	writer := NewKeyEventFeed(newClient(mr))
	reader := NewKeyEventFeed(newClient(mr))

	if _, err := reader.Latest(ctx); !errors.Is(err, domain.ErrNoKeyEvents) {
		t.Fatalf("expected ErrNoKeyEvents on empty feed, got %v", err)
	}

	first, err := writer.Record(ctx, "R1", "B")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	second, err := writer.Record(ctx, "R2", domain.InfoPause)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}

	latest, err := reader.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != 2 || latest.Participant != "R2" || latest.Info != domain.InfoPause {
		t.Fatalf("unexpected latest event %+v", latest)
	}
	if !latest.ReceivedAt.Equal(second.ReceivedAt) {
		t.Fatalf("expected received_at %s, got %s", second.ReceivedAt, latest.ReceivedAt)
	}
}
