package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"clicker-quiz-service/internal/domain"
)

// LatestPath is where the receiver exposes its most recent key event. The receiver
// redirects the path without the trailing slash.
const LatestPath = "/api/key-events/latest/"

// KeyEventPayload is the receiver's wire shape of a key press. The remote id arrives as
// a number from the receiver and as a string from participant-aware bridges.
type KeyEventPayload struct {
	ID        int64     `json:"id"`
	KeyID     RemoteID  `json:"key_id"`
	Info      string    `json:"info"`
	Timestamp time.Time `json:"timestamp"`
}

// RemoteID decodes a JSON number or string into a participant identifier.
type RemoteID string

func (r *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RemoteID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("key_id: %w", err)
	}
	*r = RemoteID(n.String())
	return nil
}

// FromKeyEvent renders a domain event in the receiver's wire shape.
func FromKeyEvent(ev domain.KeyEvent) KeyEventPayload {
	return KeyEventPayload{ID: ev.ID, KeyID: RemoteID(ev.Participant), Info: ev.Info, Timestamp: ev.ReceivedAt}
}

func (p KeyEventPayload) KeyEvent() domain.KeyEvent {
	return domain.KeyEvent{ID: p.ID, Participant: string(p.KeyID), Info: p.Info, ReceivedAt: p.Timestamp}
}

// EventClient polls a remote receiver bridge for the latest key event.
type EventClient struct {
	base *baseClient
}

func NewEventClient(baseURL string, timeout time.Duration) *EventClient {
	return &EventClient{base: newBaseClient(baseURL, timeout)}
}

// Latest returns the newest press, or domain.ErrNoKeyEvents when the bridge has none.
func (c *EventClient) Latest(ctx context.Context) (domain.KeyEvent, error) {
	body, err := c.base.do(ctx, http.MethodGet, LatestPath, nil, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return domain.KeyEvent{}, domain.ErrNoKeyEvents
		}
		return domain.KeyEvent{}, err
	}
	var payload KeyEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.KeyEvent{}, fmt.Errorf("decode key event: %w", err)
	}
	return payload.KeyEvent(), nil
}
