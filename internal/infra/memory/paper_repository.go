package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"clicker-quiz-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// PaperLoader fetches assessment papers from a backing store (e.g., Postgres).
type PaperLoader interface {
	LoadPaper(ctx context.Context, paperID string) (domain.Paper, error)
}

// LoadValidPaper loads a paper and refuses it unless every question fits the card.
// Cache implementations call it so that an invalid paper is never stored.
func LoadValidPaper(ctx context.Context, loader PaperLoader, paperID string) (domain.Paper, error) {
	paper, err := loader.LoadPaper(ctx, paperID)
	if err != nil {
		return domain.Paper{}, err
	}
	if err := paper.Validate(); err != nil {
		return domain.Paper{}, err
	}
	return paper, nil
}

// Expiry hands out cache lifetimes of ttl plus up to 10% jitter, so papers loaded
// for the same training slot do not all expire on the same tick.
type Expiry struct {
	ttl time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewExpiry(ttl time.Duration) *Expiry {
	return &Expiry{ttl: ttl, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next returns zero when caching is disabled.
func (e *Expiry) Next() time.Duration {
	if e.ttl <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ttl + time.Duration(e.rnd.Int63n(int64(e.ttl)/10+1))
}

// PaperRepository keeps validated papers in process memory until their lifetime runs out.
type PaperRepository struct {
	loader PaperLoader
	expiry *Expiry
	clock  clockwork.Clock
	sf     singleflight.Group

	mu     sync.RWMutex
	papers map[string]cachedPaper
}

type cachedPaper struct {
	paper     domain.Paper
	expiresAt time.Time
}

func NewPaperRepository(loader PaperLoader, ttl time.Duration) *PaperRepository {
	return &PaperRepository{
		loader: loader,
		expiry: NewExpiry(ttl),
		clock:  clockwork.NewRealClock(),
		papers: make(map[string]cachedPaper),
	}
}

// GetPaper returns a copy of the question list so callers cannot edit the cached paper.
func (r *PaperRepository) GetPaper(ctx context.Context, paperID string) (domain.Paper, error) {
	if paper, ok := r.lookup(paperID); ok {
		return clonePaper(paper), nil
	}

	result, err, _ := r.sf.Do(paperID, func() (interface{}, error) {
		if paper, ok := r.lookup(paperID); ok {
			return paper, nil
		}
		paper, err := LoadValidPaper(ctx, r.loader, paperID)
		if err != nil {
			return domain.Paper{}, err
		}
		if ttl := r.expiry.Next(); ttl > 0 {
			r.mu.Lock()
			r.papers[paperID] = cachedPaper{paper: paper, expiresAt: r.clock.Now().Add(ttl)}
			r.mu.Unlock()
		}
		return paper, nil
	})
	if err != nil {
		return domain.Paper{}, err
	}
	return clonePaper(result.(domain.Paper)), nil
}

func (r *PaperRepository) lookup(paperID string) (domain.Paper, bool) {
	r.mu.RLock()
	entry, ok := r.papers[paperID]
	r.mu.RUnlock()
	if !ok || !entry.expiresAt.After(r.clock.Now()) {
		return domain.Paper{}, false
	}
	return entry.paper, true
}

func clonePaper(p domain.Paper) domain.Paper {
	p.Questions = append([]domain.Question(nil), p.Questions...)
	return p
}

// StaticPaperLoader serves papers from a fixed map (samples, papers file, tests).
type StaticPaperLoader struct {
	papers map[string]domain.Paper
}

func NewStaticPaperLoader(papers map[string]domain.Paper) *StaticPaperLoader {
	return &StaticPaperLoader{papers: papers}
}

func (l *StaticPaperLoader) LoadPaper(_ context.Context, paperID string) (domain.Paper, error) {
	if paper, ok := l.papers[paperID]; ok {
		return paper, nil
	}
	return domain.Paper{}, domain.ErrPaperNotFound
}
