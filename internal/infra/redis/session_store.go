package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"clicker-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Sessions own goroutines, so the registry itself stays in process; Redis only carries
// a liveness marker per running session that other instances can inspect. The marker
// lives while the session loop keeps refreshing it and is removed once the loop exits.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	s.mark(session)
}

// Refresh rewrites the marker with a full TTL, restoring it if it was evicted.
func (s *SessionStore) Refresh(session *app.Session) {
	s.mark(session)
}

// Release clears the marker but keeps the session readable in process.
func (s *SessionStore) Release(sessionID string) {
	s.clear(sessionID)
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	s.clear(sessionID)
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// best-effort: a marker failure never affects the session itself
func (s *SessionStore) mark(session *app.Session) {
	if err := s.client.Set(context.Background(), s.key(session.ID()), session.PaperID(), s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID()).Msg("set session marker")
	}
}

func (s *SessionStore) clear(sessionID string) {
	if err := s.client.Del(context.Background(), s.key(sessionID)).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("clear session marker")
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "clicker:session:" + sessionID
}
