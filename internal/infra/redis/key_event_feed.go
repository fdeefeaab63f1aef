package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"clicker-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyEventSeqKey    = "keyevents:seq"
	keyEventLatestKey = "keyevents:latest"
)

// recordScript assigns the next id and replaces the latest press in one step, so
// concurrent writers can never leave an older press as latest.
var recordScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
redis.call('HSET', KEYS[2], 'id', id, 'participant', ARGV[1], 'info', ARGV[2], 'received_at', ARGV[3])
return id
`)

// KeyEventFeed shares the latest remote press between instances.
type KeyEventFeed struct {
	client *redis.Client
	now    func() time.Time
}

func NewKeyEventFeed(client *redis.Client) *KeyEventFeed {
	return &KeyEventFeed{client: client, now: time.Now}
}

func (f *KeyEventFeed) Record(ctx context.Context, participant, info string) (domain.KeyEvent, error) {
	receivedAt := f.now().UTC()
	id, err := recordScript.Run(ctx, f.client,
		[]string{keyEventSeqKey, keyEventLatestKey},
		participant, info, receivedAt.Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return domain.KeyEvent{}, fmt.Errorf("record key event: %w", err)
	}
	return domain.KeyEvent{ID: id, Participant: participant, Info: info, ReceivedAt: receivedAt}, nil
}

func (f *KeyEventFeed) Latest(ctx context.Context) (domain.KeyEvent, error) {
	fields, err := f.client.HGetAll(ctx, keyEventLatestKey).Result()
	if err != nil {
		return domain.KeyEvent{}, fmt.Errorf("read latest key event: %w", err)
	}
	if len(fields) == 0 {
		return domain.KeyEvent{}, domain.ErrNoKeyEvents
	}
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return domain.KeyEvent{}, fmt.Errorf("parse key event id %q: %w", fields["id"], err)
	}
	ev := domain.KeyEvent{ID: id, Participant: fields["participant"], Info: fields["info"]}
	if ts, err := time.Parse(time.RFC3339Nano, fields["received_at"]); err == nil {
		ev.ReceivedAt = ts
	}
	return ev, nil
}
