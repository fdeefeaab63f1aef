package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clicker-quiz-service/internal/domain"
	"clicker-quiz-service/internal/engine"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SessionRepository abstracts where running sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	List() []*Session
	// Refresh is called periodically by a running session.
	Refresh(session *Session)
	// Release is called once a session loop has exited. The session stays readable
	// until Delete.
	Release(sessionID string)
}

// DefaultRetention is how long a completed session stays readable for the console.
const DefaultRetention = 15 * time.Minute

// PaperRepository loads assessment papers (from cache/backing store).
type PaperRepository interface {
	GetPaper(ctx context.Context, paperID string) (domain.Paper, error)
}

// KeyEventSource is the hardware bridge: it only knows the latest press.
type KeyEventSource interface {
	Latest(ctx context.Context) (domain.KeyEvent, error)
}

// Submitter delivers a finished ledger to the submission endpoint. It must be all or nothing.
type Submitter interface {
	Submit(ctx context.Context, submission domain.Submission) error
}

// EventPublisher fans session lifecycle events out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}

// Metrics observes session activity.
type Metrics interface {
	SessionStarted()
	SessionFinished(outcome string)
	SubmissionAttempted(success bool, took time.Duration)
	PollFailed()
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted()                         {}
func (nopMetrics) SessionFinished(string)                  {}
func (nopMetrics) SubmissionAttempted(bool, time.Duration) {}
func (nopMetrics) PollFailed()                             {}

// SessionService contains the session use cases.
type SessionService struct {
	sessions  SessionRepository
	papers    PaperRepository
	source    KeyEventSource
	submitter Submitter
	publisher EventPublisher
	metrics   Metrics
	clock     clockwork.Clock
	newID     func() string
	retention time.Duration
}

// Option customizes a SessionService.
type Option func(*SessionService)

// WithClock replaces the real clock, mostly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *SessionService) { s.clock = clock }
}

// WithIDGenerator replaces the uuid session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *SessionService) { s.newID = newID }
}

// WithPublisher sets where lifecycle events go. Without it events are dropped.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *SessionService) { s.publisher = publisher }
}

// WithRetention sets how long completed sessions stay registered. Zero keeps them until
// they are stopped.
func WithRetention(d time.Duration) Option {
	return func(s *SessionService) { s.retention = d }
}

// WithMetrics records session activity on m.
func WithMetrics(m Metrics) Option {
	return func(s *SessionService) { s.metrics = m }
}

func NewSessionService(store SessionRepository, papers PaperRepository, source KeyEventSource, submitter Submitter, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:  store,
		papers:    papers,
		source:    source,
		submitter: submitter,
		metrics:   nopMetrics{},
		clock:     clockwork.NewRealClock(),
		newID:     func() string { return uuid.New().String() },
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the paper once and launches a session on its first question.
func (s *SessionService) Start(ctx context.Context, paperID string) (*Session, error) {
	paper, err := s.papers.GetPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if len(paper.Questions) == 0 {
		return nil, fmt.Errorf("paper %s: %w", paperID, domain.ErrEmptyPaper)
	}

	session, err := newSession(s.newID(), paper, sessionDeps{
		clock:     s.clock,
		source:    s.source,
		submitter: s.submitter,
		publisher: s.publisher,
		metrics:   s.metrics,
		registry:  s.sessions,
	})
	if err != nil {
		return nil, err
	}

	baseline := s.baseline(ctx)
	s.sessions.Put(session)
	session.start(baseline)
	go s.retire(session)
	s.metrics.SessionStarted()
	session.publish(ctx, domain.SessionEvent{Type: domain.EventSessionStarted})
	return session, nil
}

// retire forgets a completed session once the retention period is over. Stopped
// sessions are removed by Stop.
func (s *SessionService) retire(session *Session) {
	<-session.Done()
	if s.retention <= 0 || !session.Snapshot().Completed {
		return
	}
	<-s.clock.After(s.retention)
	if current, ok := s.sessions.Get(session.ID()); ok && current == session {
		s.sessions.Delete(session.ID())
		log.Debug().Str("session_id", session.ID()).Msg("completed session retired")
	}
}

// baseline returns the id of the press that was already latest before the session began.
func (s *SessionService) baseline(ctx context.Context) *int64 {
	ev, err := s.source.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoKeyEvents) {
			log.Warn().Err(err).Msg("could not read key event baseline")
		}
		return nil
	}
	return &ev.ID
}

// Get returns a running or finished session.
func (s *SessionService) Get(_ context.Context, sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// List returns snapshots of every registered session.
func (s *SessionService) List(_ context.Context) []domain.SessionSnapshot {
	sessions := s.sessions.List()
	out := make([]domain.SessionSnapshot, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Snapshot())
	}
	return out
}

// Command applies an operator action (pause, resume, back, forward, confirm).
func (s *SessionService) Command(ctx context.Context, sessionID, action string) error {
	class, err := engine.ParseAction(action)
	if err != nil {
		return err
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return session.command(ctx, class)
}

// Subscribe returns a channel that receives snapshots of a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionSnapshot, func(), error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Stop tears a session down and forgets it.
func (s *SessionService) Stop(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.stop()
	s.sessions.Delete(sessionID)
	if !session.Snapshot().Completed {
		s.metrics.SessionFinished("stopped")
	}
	session.publish(ctx, domain.SessionEvent{Type: domain.EventSessionStopped})
	return nil
}

// Shutdown stops every registered session.
func (s *SessionService) Shutdown(ctx context.Context) {
	for _, session := range s.sessions.List() {
		if err := s.Stop(ctx, session.ID()); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID()).Msg("stop session on shutdown")
		}
	}
}
