package app

import (
	"context"
	"errors"
	"sync"

	"clicker-quiz-service/internal/domain"
	"clicker-quiz-service/internal/engine"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	inputBufferSize = 16
	// heartbeatTicks is how many clock ticks pass between liveness refreshes.
	heartbeatTicks = 5
)

var errSessionFinished = errors.New("session finished")

// Session runs one quiz. A single loop goroutine owns the state machine; the poller,
// operator commands and submission results reach it through the inputs channel.
type Session struct {
	id        string
	paper     domain.Paper
	machine   *engine.Machine
	clock     clockwork.Clock
	source    KeyEventSource
	submitter Submitter
	publisher EventPublisher
	metrics   Metrics
	registry  SessionRepository
	logger    zerolog.Logger

	inputs chan engine.Input
	done   chan struct{}
	cancel context.CancelFunc

	mu          sync.RWMutex
	snapshot    domain.SessionSnapshot
	lastError   string
	closed      bool
	subscribers map[chan domain.SessionSnapshot]struct{}
}

type sessionDeps struct {
	clock     clockwork.Clock
	source    KeyEventSource
	submitter Submitter
	publisher EventPublisher
	metrics   Metrics
	registry  SessionRepository
}

func newSession(id string, paper domain.Paper, deps sessionDeps) (*Session, error) {
	machine, err := engine.NewMachine(paper.Questions)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:          id,
		paper:       paper,
		machine:     machine,
		clock:       deps.clock,
		source:      deps.source,
		submitter:   deps.submitter,
		publisher:   deps.publisher,
		metrics:     deps.metrics,
		registry:    deps.registry,
		logger:      log.With().Str("session_id", id).Str("paper_id", paper.ID).Logger(),
		inputs:      make(chan engine.Input, inputBufferSize),
		done:        make(chan struct{}),
		subscribers: make(map[chan domain.SessionSnapshot]struct{}),
	}
	s.snapshot = s.render()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// PaperID returns the assessment paper the session runs.
func (s *Session) PaperID() string {
	return s.paper.ID
}

// Snapshot returns the latest published view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// start applies the baseline and launches the loop. It must be called once.
func (s *Session) start(baseline *int64) {
	if baseline != nil {
		s.machine.Apply(engine.Baseline{ID: *baseline})
		s.publishSnapshot()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// stop tears the session down and waits for the loop to exit.
func (s *Session) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// command delivers an operator action to the loop.
func (s *Session) command(ctx context.Context, class domain.KeyClass) error {
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}
	select {
	case s.inputs <- engine.Command{Action: class}:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.closeSubscribers()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(gctx, g) })
	g.Go(func() error { return s.poll(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, errSessionFinished) {
		s.logger.Error().Err(err).Msg("session loop stopped")
	}
	s.registry.Release(s.id)
	s.logger.Info().Msg("session torn down")
}

func (s *Session) loop(ctx context.Context, g *errgroup.Group) error {
	ticker := s.clock.NewTicker(engine.TickInterval)
	defer ticker.Stop()

	s.logger.Info().Int("questions", len(s.paper.Questions)).Msg("session started")
	ticks := 0
	for {
		var in engine.Input
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			in = engine.Tick{}
		case in = <-s.inputs:
		}
		if ctx.Err() != nil {
			return nil
		}
		if _, ok := in.(engine.Tick); ok {
			if ticks++; ticks%heartbeatTicks == 0 {
				s.registry.Refresh(s)
			}
		}
		if s.apply(ctx, g, ticker, in) {
			return errSessionFinished
		}
	}
}

// apply runs one transition and executes its outcome. It reports whether the session
// has completed.
func (s *Session) apply(ctx context.Context, g *errgroup.Group, ticker clockwork.Ticker, in engine.Input) bool {
	out := s.machine.Apply(in)
	if out.Duplicate {
		return false
	}
	if out.Dropped {
		s.logger.Debug().Msg("advance request dropped while submission in flight")
	}
	if out.Rearm {
		// the new countdown gets a full first second
		ticker.Reset(engine.TickInterval)
	}

	if out.Submit != nil {
		sub := *out.Submit
		sub.SessionID = s.id
		sub.PaperID = s.paper.ID
		s.setLastError("")
		s.logger.Info().Int("attempt", sub.Attempt).Int("participants", len(sub.Answers)).Msg("submitting answers")
		g.Go(func() error {
			s.submit(ctx, sub)
			return nil
		})
	}

	if out.Failure != nil {
		state := s.machine.State()
		s.setLastError(out.Failure.Error())
		s.logger.Error().Err(out.Failure).Int("attempt", state.Attempt).Msg("submission failed, waiting for next advance to retry")
		s.publish(ctx, domain.SessionEvent{
			Type:    domain.EventSubmissionFailed,
			Attempt: state.Attempt,
			Error:   out.Failure.Error(),
		})
	}

	if out.Changed {
		if out.Advanced {
			s.logger.Debug().Int("question", s.machine.State().Index).Msg("advanced")
		}
		s.publishSnapshot()
	}

	if out.Completed {
		answers := s.machine.Ledger()
		result := domain.SessionResult{
			SessionID:   s.id,
			PaperID:     s.paper.ID,
			Answers:     answers,
			Scores:      domain.Score(s.paper, answers),
			CompletedAt: s.clock.Now(),
		}
		s.logger.Info().Int("participants", len(answers)).Msg("session completed")
		s.metrics.SessionFinished("completed")
		s.publish(ctx, domain.SessionEvent{Type: domain.EventSessionCompleted, Result: &result})
		return true
	}
	return false
}

func (s *Session) submit(ctx context.Context, sub domain.Submission) {
	start := s.clock.Now()
	err := s.submitter.Submit(ctx, sub)
	if ctx.Err() == nil {
		s.metrics.SubmissionAttempted(err == nil, s.clock.Since(start))
	}
	select {
	case s.inputs <- engine.SubmissionSettled{Attempt: sub.Attempt, Err: err}:
	case <-ctx.Done():
		s.logger.Debug().Int("attempt", sub.Attempt).Msg("dropping submission result after teardown")
	}
}

// poll fetches the latest key event on a fixed interval. Failures are retried on the
// next tick; dedup happens in the state machine.
func (s *Session) poll(ctx context.Context) error {
	ticker := s.clock.NewTicker(engine.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}

		ev, err := s.source.Latest(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, domain.ErrNoKeyEvents):
				s.logger.Debug().Msg("no key events yet")
			default:
				s.metrics.PollFailed()
				s.logger.Warn().Err(err).Msg("poll latest key event failed")
			}
			continue
		}

		select {
		case s.inputs <- engine.KeyPressed{Event: ev}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) publish(ctx context.Context, evt domain.SessionEvent) {
	if s.publisher == nil {
		return
	}
	evt.SessionID = s.id
	evt.PaperID = s.paper.ID
	evt.At = s.clock.Now()
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event", string(evt.Type)).Msg("publish session event failed")
	}
}

func (s *Session) setLastError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// render builds a snapshot from the machine. Only the loop goroutine may call it once
// the session has started.
func (s *Session) render() domain.SessionSnapshot {
	snap := s.machine.Snapshot()
	snap.SessionID = s.id
	snap.PaperID = s.paper.ID
	snap.UpdatedAt = s.clock.Now()
	return snap
}

func (s *Session) publishSnapshot() {
	snap := s.render()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.LastError = s.lastError
	s.snapshot = snap
	s.broadcastLocked(snap)
}

func (s *Session) subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	ch <- s.snapshot
	if s.closed {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(snap domain.SessionSnapshot) {
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscriber: replace its oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
