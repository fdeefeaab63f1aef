package memory

import (
	"context"
	"sync"

	"clicker-quiz-service/internal/domain"
)

// EventLog records published session events in order.
type EventLog struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Publish(_ context.Context, event domain.SessionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (l *EventLog) Events() []domain.SessionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.SessionEvent, len(l.events))
	copy(out, l.events)
	return out
}
