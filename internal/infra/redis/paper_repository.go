package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"clicker-quiz-service/internal/domain"
	"clicker-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// PaperRepository caches whole papers in Redis and falls back to a loader on cache miss.
// Papers are stored as JSON: SET paper:{paperID} {...} EX ttl
type PaperRepository struct {
	client *redis.Client
	loader memory.PaperLoader
	expiry *memory.Expiry
	sf     singleflight.Group
}

func NewPaperRepository(client *redis.Client, loader memory.PaperLoader, ttl time.Duration) *PaperRepository {
	return &PaperRepository{
		client: client,
		loader: loader,
		expiry: memory.NewExpiry(ttl),
	}
}

func (r *PaperRepository) GetPaper(ctx context.Context, paperID string) (domain.Paper, error) {
	if paper, ok := r.cached(ctx, paperID); ok {
		return paper, nil
	}

	result, err, _ := r.sf.Do(paperID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if paper, ok := r.cached(ctx, paperID); ok {
			return paper, nil
		}

		paper, err := memory.LoadValidPaper(ctx, r.loader, paperID)
		if err != nil {
			return domain.Paper{}, err
		}

		payload, err := json.Marshal(paper)
		if err != nil {
			return domain.Paper{}, err
		}
		if err := r.client.Set(ctx, r.key(paperID), payload, r.expiry.Next()).Err(); err != nil {
			log.Warn().Err(err).Str("paper_id", paperID).Msg("cache paper in redis")
		}
		return paper, nil
	})
	if err != nil {
		return domain.Paper{}, err
	}
	return result.(domain.Paper), nil
}

func (r *PaperRepository) cached(ctx context.Context, paperID string) (domain.Paper, bool) {
	raw, err := r.client.Get(ctx, r.key(paperID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("paper_id", paperID).Msg("read cached paper")
		}
		return domain.Paper{}, false
	}
	var paper domain.Paper
	if err := json.Unmarshal(raw, &paper); err != nil {
		log.Warn().Err(err).Str("paper_id", paperID).Msg("decode cached paper")
		return domain.Paper{}, false
	}
	if err := paper.Validate(); err != nil {
		log.Warn().Err(err).Str("paper_id", paperID).Msg("ignore invalid cached paper")
		return domain.Paper{}, false
	}
	return paper, true
}

func (r *PaperRepository) key(paperID string) string {
	return "paper:" + paperID
}
