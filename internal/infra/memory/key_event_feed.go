package memory

import (
	"context"
	"sync"
	"time"

	"clicker-quiz-service/internal/domain"
)

// KeyEventFeed keeps only the latest press, the way the receiver bridge does.
// Ids increase by one per recorded press.
type KeyEventFeed struct {
	mu     sync.Mutex
	now    func() time.Time
	seq    int64
	latest *domain.KeyEvent
}

func NewKeyEventFeed() *KeyEventFeed {
	return &KeyEventFeed{now: time.Now}
}

// Record stores a press and returns it with its assigned id.
func (f *KeyEventFeed) Record(_ context.Context, participant, info string) (domain.KeyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ev := domain.KeyEvent{ID: f.seq, Participant: participant, Info: info, ReceivedAt: f.now()}
	f.latest = &ev
	return ev, nil
}

// Latest returns the newest press or domain.ErrNoKeyEvents.
func (f *KeyEventFeed) Latest(_ context.Context) (domain.KeyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return domain.KeyEvent{}, domain.ErrNoKeyEvents
	}
	return *f.latest, nil
}
