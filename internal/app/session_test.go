package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"clicker-quiz-service/internal/app"
	"clicker-quiz-service/internal/domain"
	"clicker-quiz-service/internal/engine"
	"clicker-quiz-service/internal/infra/memory"
	"github.com/jonboulle/clockwork"
)

func TestSessionRecordsPolledAnswersAndSubmitsOnce(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	session := h.start(t)

	h.press(t, session, "R1", "B")
	h.press(t, session, "R2", "A")
	h.press(t, session, "R1", "D")
	if snap := session.Snapshot(); snap.AnsweredCount != 2 || snap.Participants != 2 {
		t.Fatalf("expected 2 answered participants, got %+v", snap)
	}

	if err := h.service.Command(ctx, session.ID(), "forward"); err != nil {
		t.Fatalf("forward: %v", err)
	}
	waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.QuestionIndex == 1 && s.AnsweredCount == 0 })

	h.press(t, session, "R1", "C")
	if err := h.service.Command(ctx, session.ID(), "confirm"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.Completed })
	waitDone(t, session)

	calls := h.submitter.submissions()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(calls))
	}
	payload, _ := json.Marshal(calls[0].Answers)
	if want := `{"R1":[1,2],"R2":[0,null]}`; string(payload) != want {
		t.Fatalf("payload = %s, want %s", payload, want)
	}
	if calls[0].SessionID != session.ID() || calls[0].PaperID != "paper-1" {
		t.Fatalf("expected session ids on submission, got %+v", calls[0])
	}

	events := h.events.Events()
	last := events[len(events)-1]
	if last.Type != domain.EventSessionCompleted || last.Result == nil || len(last.Result.Scores) != 2 {
		t.Fatalf("expected completed event with scores, got %+v", last)
	}
}

func TestSubmissionFailureKeepsLastQuestionUntilRetry(t *testing.T) {
	h := newHarness(t, 1)
	h.submitter.failures = 1
	ctx := context.Background()
	session := h.start(t)

	h.press(t, session, "R1", "A")
	if err := h.service.Command(ctx, session.ID(), "confirm"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	failed := waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.LastError != "" })
	if failed.Ended || failed.QuestionIndex != 0 {
		t.Fatalf("expected rollback to the last question, got %+v", failed)
	}

	if err := h.service.Command(ctx, session.ID(), "confirm"); err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	done := waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.Completed })
	if done.LastError != "" {
		t.Fatalf("expected error cleared after retry, got %q", done.LastError)
	}

	if n := len(h.submitter.submissions()); n != 2 {
		t.Fatalf("expected 2 submission attempts, got %d", n)
	}
	if h.submitter.peak() != 1 {
		t.Fatalf("expected submissions never to overlap, peak %d", h.submitter.peak())
	}
	var sawFailure bool
	for _, evt := range h.events.Events() {
		if evt.Type == domain.EventSubmissionFailed && evt.Attempt == 1 {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("expected submission_failed event")
	}
	if ok, failed := h.metrics.submissionCounts(); ok != 1 || failed != 1 {
		t.Fatalf("expected one failed and one successful attempt recorded, got ok=%d failed=%d", ok, failed)
	}
}

func TestClockExpiryAdvancesQuestion(t *testing.T) {
	h := newHarness(t, 2)
	session := h.start(t)

	for i := 0; i < engine.QuestionBudget; i++ {
		h.tick(t, session)
	}
	snap := session.Snapshot()
	if snap.QuestionIndex != 1 || snap.TimeRemaining != engine.QuestionBudget {
		t.Fatalf("expected Q2 with full clock, got %+v", snap)
	}
}

func TestPauseFreezesCountdown(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	session := h.start(t)

	h.tick(t, session)
	h.tick(t, session)
	if err := h.service.Command(ctx, session.ID(), "pause"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	frozen := waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.Paused })

	for i := 0; i < 5; i++ {
		h.clock.Advance(engine.TickInterval)
	}
	h.press(t, session, "R1", "A")
	if got := session.Snapshot().TimeRemaining; got != frozen.TimeRemaining {
		t.Fatalf("expected countdown frozen at %d, got %d", frozen.TimeRemaining, got)
	}

	h.press(t, session, "R2", domain.InfoResume)
	waitFor(t, session, func(s domain.SessionSnapshot) bool { return !s.Paused })
	resumed := session.Snapshot().TimeRemaining
	if resumed > frozen.TimeRemaining || resumed < frozen.TimeRemaining-1 {
		t.Fatalf("expected countdown to continue from %d, got %d", frozen.TimeRemaining, resumed)
	}
}

func TestTeardownDropsLateSubmissionResult(t *testing.T) {
	h := newHarness(t, 1)
	h.submitter.block = true
	ctx := context.Background()
	session := h.start(t)

	if err := h.service.Command(ctx, session.ID(), "confirm"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.Ended })
	h.submitter.waitCalls(t, 1)

	if err := h.service.Stop(ctx, session.ID()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitDone(t, session)

	snap := session.Snapshot()
	if !snap.Ended || snap.Completed || snap.LastError != "" {
		t.Fatalf("expected late result ignored after teardown, got %+v", snap)
	}
	if err := h.service.Command(ctx, session.ID(), "confirm"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after stop, got %v", err)
	}
}

func TestBaselineSkipsPressesBeforeStart(t *testing.T) {
	h := newHarness(t, 2)
	_, _ = h.feed.Record(context.Background(), "R9", "A")
	session := h.start(t)

	h.clock.Advance(engine.PollInterval)
	h.clock.Advance(engine.PollInterval)
	if snap := session.Snapshot(); snap.Participants != 0 || snap.AnsweredCount != 0 {
		t.Fatalf("expected press before start ignored, got %+v", snap)
	}

	h.press(t, session, "R1", "B")
	if snap := session.Snapshot(); snap.Participants != 1 || snap.AnsweredCount != 1 {
		t.Fatalf("expected press after start recorded, got %+v", snap)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	session := h.start(t)

	ch, cancel, err := h.service.Subscribe(ctx, session.ID())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if initial.SessionID != session.ID() || initial.TotalQuestions != 2 {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	if err := h.service.Command(ctx, session.ID(), "pause"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Paused {
				return
			}
		case <-timeout:
			t.Fatalf("expected paused snapshot")
		}
	}
}

func TestStartRejectsUnknownAndEmptyPapers(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	if _, err := h.service.Start(ctx, "missing"); !errors.Is(err, domain.ErrPaperNotFound) {
		t.Fatalf("expected ErrPaperNotFound, got %v", err)
	}
	if _, err := h.service.Start(ctx, "empty"); !errors.Is(err, domain.ErrEmptyPaper) {
		t.Fatalf("expected ErrEmptyPaper, got %v", err)
	}
	if err := h.service.Command(ctx, "nope", "pause"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := h.service.Command(ctx, "nope", "dance"); !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestQuestionChangeRestartsTheSecond(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	session := h.start(t)

	h.clock.Advance(900 * time.Millisecond)
	if err := h.service.Command(ctx, session.ID(), "forward"); err != nil {
		t.Fatalf("forward: %v", err)
	}
	waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.QuestionIndex == 1 })

	// 500ms into Q2, past the point where the Q1 second would have ended
	h.press(t, session, "R1", "A")
	if got := session.Snapshot().TimeRemaining; got != engine.QuestionBudget {
		t.Fatalf("expected a full clock 500ms into Q2, got %d", got)
	}

	h.clock.Advance(engine.PollInterval)
	waitFor(t, session, func(s domain.SessionSnapshot) bool { return s.TimeRemaining == engine.QuestionBudget-1 })
}

func TestRunningSessionRefreshesRegistry(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	session := h.start(t)

	for i := 0; i < 5; i++ {
		h.tick(t, session)
	}
	if got := h.store.refreshCount(); got != 1 {
		t.Fatalf("expected one refresh after five ticks, got %d", got)
	}
	if got := h.store.released(); len(got) != 0 {
		t.Fatalf("expected no release while running, got %v", got)
	}

	if err := h.service.Stop(ctx, session.ID()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := h.store.released(); len(got) != 1 || got[0] != session.ID() {
		t.Fatalf("expected the session released on teardown, got %v", got)
	}
}

func TestCompletedSessionIsRetired(t *testing.T) {
	h := newHarness(t, 1, app.WithRetention(time.Minute))
	ctx := context.Background()
	session := h.start(t)

	if err := h.service.Command(ctx, session.ID(), "confirm"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	waitDone(t, session)
	if got := h.store.released(); len(got) != 1 {
		t.Fatalf("expected completed session released, got %v", got)
	}
	if _, err := h.service.Get(ctx, session.ID()); err != nil {
		t.Fatalf("expected completed session readable during retention: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("retention timer not armed: %v", err)
	}
	h.clock.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := h.service.Get(ctx, session.ID()); errors.Is(err, domain.ErrSessionNotFound) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected completed session retired after the retention period")
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

type harness struct {
	clock     fakeClock
	store     *trackingStore
	feed      *memory.KeyEventFeed
	submitter *scriptedSubmitter
	events    *memory.EventLog
	metrics   *recordingMetrics
	service   *app.SessionService
}

func newHarness(t *testing.T, questions int, opts ...app.Option) *harness {
	t.Helper()
	qs := make([]domain.Question, questions)
	for i := range qs {
		qs[i] = domain.Question{ID: int64(i + 1), Prompt: "question", Options: [4]string{"a", "b", "c", "d"}, CorrectIndex: 1}
	}
	papers := memory.NewPaperRepository(memory.NewStaticPaperLoader(map[string]domain.Paper{
		"paper-1": {ID: "paper-1", Questions: qs},
		"empty":   {ID: "empty"},
	}), time.Minute)

	h := &harness{
		clock:     clockwork.NewFakeClock(),
		store:     &trackingStore{SessionStore: memory.NewSessionStore()},
		feed:      memory.NewKeyEventFeed(),
		submitter: &scriptedSubmitter{},
		events:    memory.NewEventLog(),
		metrics:   &recordingMetrics{},
	}
	opts = append([]app.Option{
		app.WithClock(h.clock),
		app.WithPublisher(h.events),
		app.WithMetrics(h.metrics),
	}, opts...)
	h.service = app.NewSessionService(h.store, papers, h.feed, h.submitter, opts...)
	t.Cleanup(func() { h.service.Shutdown(context.Background()) })
	return h
}

// start launches paper-1 and waits until the tick and poll tickers are armed.
func (h *harness) start(t *testing.T) *app.Session {
	t.Helper()
	session, err := h.service.Start(context.Background(), "paper-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("tickers not armed: %v", err)
	}
	return session
}

// press records a remote press and lets the poller pick it up.
func (h *harness) press(t *testing.T, session *app.Session, participant, info string) {
	t.Helper()
	ev, _ := h.feed.Record(context.Background(), participant, info)
	h.clock.Advance(engine.PollInterval)
	waitFor(t, session, func(s domain.SessionSnapshot) bool {
		return s.LastEventID != nil && *s.LastEventID == ev.ID
	})
}

// tick advances the clock one second and waits for the countdown to move.
func (h *harness) tick(t *testing.T, session *app.Session) {
	t.Helper()
	before := session.Snapshot()
	h.clock.Advance(engine.TickInterval)
	waitFor(t, session, func(s domain.SessionSnapshot) bool {
		if before.TimeRemaining > 1 {
			return s.TimeRemaining == before.TimeRemaining-1
		}
		return s.TimeRemaining == engine.QuestionBudget && (s.QuestionIndex != before.QuestionIndex || s.Ended)
	})
}

func waitFor(t *testing.T, session *app.Session, cond func(domain.SessionSnapshot) bool) domain.SessionSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := session.Snapshot(); cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met, last snapshot %+v", session.Snapshot())
	return domain.SessionSnapshot{}
}

func waitDone(t *testing.T, session *app.Session) {
	t.Helper()
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session loop did not exit")
	}
}

// scriptedSubmitter fails the first `failures` calls and tracks overlapping calls.
type scriptedSubmitter struct {
	mu       sync.Mutex
	failures int
	block    bool
	calls    []domain.Submission
	inFlight int
	maxSeen  int
}

func (s *scriptedSubmitter) Submit(ctx context.Context, submission domain.Submission) error {
	s.mu.Lock()
	s.calls = append(s.calls, submission)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	fail := len(s.calls) <= s.failures
	block := s.block
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("end-test endpoint unavailable")
	}
	return nil
}

func (s *scriptedSubmitter) submissions() []domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *scriptedSubmitter) peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

func (s *scriptedSubmitter) waitCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.submissions()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d submission calls", n)
}

type recordingMetrics struct {
	mu        sync.Mutex
	submitOK  int
	submitBad int
}

func (m *recordingMetrics) SessionStarted()        {}
func (m *recordingMetrics) SessionFinished(string) {}
func (m *recordingMetrics) PollFailed()            {}

func (m *recordingMetrics) SubmissionAttempted(success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.submitOK++
	} else {
		m.submitBad++
	}
}

func (m *recordingMetrics) submissionCounts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitOK, m.submitBad
}

// trackingStore records liveness calls made by running sessions.
type trackingStore struct {
	*memory.SessionStore
	mu        sync.Mutex
	refreshes int
	releases  []string
}

func (s *trackingStore) Refresh(*app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
}

func (s *trackingStore) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases = append(s.releases, sessionID)
}

func (s *trackingStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *trackingStore) released() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.releases...)
}
