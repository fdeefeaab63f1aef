package memory

import (
	"context"
	"errors"
	"testing"

	"clicker-quiz-service/internal/domain"
)

func TestKeyEventFeedKeepsLatest(t *testing.T) {
	feed := NewKeyEventFeed()
	ctx := context.Background()

	if _, err := feed.Latest(ctx); !errors.Is(err, domain.ErrNoKeyEvents) {
		t.Fatalf("expected ErrNoKeyEvents, got %v", err)
	}

	first, _ := feed.Record(ctx, "R1", "A")
	second, _ := feed.Record(ctx, "R2", domain.InfoPause)
	if second.ID <= first.ID {
		t.Fatalf("expected increasing ids, got %d then %d", first.ID, second.ID)
	}

	latest, err := feed.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID || latest.Participant != "R2" || latest.Info != domain.InfoPause {
		t.Fatalf("expected latest press, got %+v", latest)
	}
}
