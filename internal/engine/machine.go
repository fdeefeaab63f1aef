// Package engine holds the session state machine. It is a pure reducer: every input is
// applied synchronously by Machine.Apply and the caller executes the returned outcome.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"clicker-quiz-service/internal/domain"
)

// Timing contract shared with the receiver and the display.
const (
	PollInterval   = 500 * time.Millisecond
	TickInterval   = time.Second
	QuestionBudget = 30
)

// Phase is the lifecycle position of a session.
type Phase int

const (
	// PhaseActive accepts answers, navigation and clock ticks.
	PhaseActive Phase = iota
	// PhaseSubmitting means the session has ended and the advance guard is held
	// until the submission settles.
	PhaseSubmitting
	// PhaseCompleted is terminal: the ledger was accepted.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseSubmitting:
		return "submitting"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Input is anything the session loop feeds into the machine.
type Input interface {
	input()
}

// KeyPressed carries an event from the hardware feed.
type KeyPressed struct {
	Event domain.KeyEvent
}

// Tick is one second of the session clock.
type Tick struct{}

// Command is an operator action issued from the console.
type Command struct {
	Action domain.KeyClass
}

// Baseline marks every id up to ID as consumed without applying it. It is fed once at
// session start so presses made before the session began are not replayed.
type Baseline struct {
	ID int64
}

// SubmissionSettled reports the result of submission Attempt.
type SubmissionSettled struct {
	Attempt int
	Err     error
}

func (KeyPressed) input()        {}
func (Tick) input()              {}
func (Baseline) input()          {}
func (Command) input()           {}
func (SubmissionSettled) input() {}

// Outcome describes what an Apply call did. Submit is set when the caller must start a
// submission; Completed and Failure report how a submission settled. Rearm asks the
// caller to restart its tick interval because the countdown started over.
type Outcome struct {
	Changed   bool
	Duplicate bool
	Dropped   bool
	Advanced  bool
	Rearm     bool
	Submit    *domain.Submission
	Completed bool
	Failure   error
}

// State is the externally visible part of the machine.
type State struct {
	Index     int
	Total     int
	Paused    bool
	Phase     Phase
	Remaining int
	Watermark *int64
	Attempt   int
}

// Ended reports whether the session stopped accepting transitions.
func (s State) Ended() bool {
	return s.Phase != PhaseActive
}

// Machine owns the session state and the answer ledger.
type Machine struct {
	questions    []domain.Question
	index        int
	paused       bool
	phase        Phase
	remaining    int
	watermark    int64
	hasWatermark bool
	attempt      int
	ledger       ledger
	answered     map[string]struct{}
}

// NewMachine starts a session on the first question with a full clock.
func NewMachine(questions []domain.Question) (*Machine, error) {
	if len(questions) == 0 {
		return nil, domain.ErrEmptyPaper
	}
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	return &Machine{
		questions: qs,
		remaining: QuestionBudget,
		ledger:    newLedger(len(qs)),
		answered:  make(map[string]struct{}),
	}, nil
}

// ParseAction maps an operator action name to the class it triggers.
func ParseAction(name string) (domain.KeyClass, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pause":
		return domain.KeyPause, nil
	case "resume":
		return domain.KeyResume, nil
	case "back", "backward":
		return domain.KeyBackward, nil
	case "forward", "next":
		return domain.KeyForward, nil
	case "confirm", "ok":
		return domain.KeyConfirm, nil
	default:
		return domain.KeyUnknown, fmt.Errorf("%w: %q", domain.ErrUnknownAction, name)
	}
}

// Apply applies one input. It never fails; invalid inputs are no-ops.
func (m *Machine) Apply(in Input) Outcome {
	switch in := in.(type) {
	case KeyPressed:
		return m.applyKey(in.Event)
	case Tick:
		return m.tick()
	case Baseline:
		if m.hasWatermark && in.ID <= m.watermark {
			return Outcome{Duplicate: true}
		}
		m.watermark = in.ID
		m.hasWatermark = true
		return Outcome{Changed: true}
	case Command:
		return m.control(in.Action)
	case SubmissionSettled:
		return m.settle(in)
	default:
		return Outcome{}
	}
}

func (m *Machine) applyKey(ev domain.KeyEvent) Outcome {
	if m.hasWatermark && ev.ID <= m.watermark {
		return Outcome{Duplicate: true}
	}
	m.watermark = ev.ID
	m.hasWatermark = true

	out := Outcome{Changed: true}
	if m.phase != PhaseActive || ev.Participant == "" || ev.Info == "" {
		return out
	}
	m.ledger.register(ev.Participant)

	class, option := domain.Classify(ev.Info)
	if class == domain.KeyAnswer {
		if m.ledger.record(ev.Participant, m.index, option) {
			m.answered[ev.Participant] = struct{}{}
		}
		return out
	}
	next := m.control(class)
	next.Changed = true
	return next
}

// control applies a navigation or pause class, shared by remotes and the console.
func (m *Machine) control(class domain.KeyClass) Outcome {
	if m.phase != PhaseActive {
		if class == domain.KeyForward || class == domain.KeyConfirm {
			return Outcome{Dropped: true}
		}
		return Outcome{}
	}
	last := len(m.questions) - 1
	switch class {
	case domain.KeyBackward:
		if m.index == 0 {
			return Outcome{}
		}
		m.index--
		m.resetQuestion()
		return Outcome{Changed: true, Rearm: true}
	case domain.KeyForward:
		if m.index >= last {
			return Outcome{}
		}
		return m.advance()
	case domain.KeyConfirm:
		if m.index != last {
			return Outcome{}
		}
		return m.advance()
	case domain.KeyPause:
		if m.paused {
			return Outcome{}
		}
		m.paused = true
		return Outcome{Changed: true}
	case domain.KeyResume:
		if !m.paused {
			return Outcome{}
		}
		m.paused = false
		return Outcome{Changed: true}
	default:
		return Outcome{}
	}
}

func (m *Machine) tick() Outcome {
	if m.phase != PhaseActive || m.paused {
		return Outcome{}
	}
	m.remaining--
	if m.remaining > 0 {
		return Outcome{Changed: true}
	}
	m.remaining = QuestionBudget
	out := m.advance()
	out.Changed = true
	return out
}

// advance is the single-flight advance coordinator. The guard is the phase: only an
// active session may advance, and ending the session moves it to PhaseSubmitting.
func (m *Machine) advance() Outcome {
	if m.phase != PhaseActive {
		return Outcome{Dropped: true}
	}
	if m.index < len(m.questions)-1 {
		m.index++
		m.resetQuestion()
		return Outcome{Changed: true, Advanced: true, Rearm: true}
	}
	m.phase = PhaseSubmitting
	m.attempt++
	return Outcome{
		Changed: true,
		Submit: &domain.Submission{
			Attempt: m.attempt,
			Answers: m.ledger.snapshot(),
		},
	}
}

func (m *Machine) settle(in SubmissionSettled) Outcome {
	if m.phase != PhaseSubmitting || in.Attempt != m.attempt {
		return Outcome{}
	}
	if in.Err == nil {
		m.phase = PhaseCompleted
		return Outcome{Changed: true, Completed: true}
	}
	m.phase = PhaseActive
	return Outcome{Changed: true, Rearm: true, Failure: in.Err}
}

func (m *Machine) resetQuestion() {
	m.remaining = QuestionBudget
	m.answered = make(map[string]struct{})
}

// State returns the current state.
func (m *Machine) State() State {
	s := State{
		Index:     m.index,
		Total:     len(m.questions),
		Paused:    m.paused,
		Phase:     m.phase,
		Remaining: m.remaining,
		Attempt:   m.attempt,
	}
	if m.hasWatermark {
		w := m.watermark
		s.Watermark = &w
	}
	return s
}

// Ledger returns a copy of every recorded answer.
func (m *Machine) Ledger() domain.Ledger {
	return m.ledger.snapshot()
}

// Answered lists participants who answered the active question, sorted.
func (m *Machine) Answered() []string {
	out := make([]string, 0, len(m.answered))
	for p := range m.answered {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Snapshot renders the state for the display. Session ids are filled by the caller.
func (m *Machine) Snapshot() domain.SessionSnapshot {
	s := m.State()
	q := m.questions[m.index]
	return domain.SessionSnapshot{
		QuestionIndex:  s.Index,
		TotalQuestions: s.Total,
		Question:       &domain.QuestionView{ID: q.ID, Prompt: q.Prompt, Options: q.Options},
		Paused:         s.Paused,
		Ended:          s.Ended(),
		Completed:      s.Phase == PhaseCompleted,
		TimeRemaining:  s.Remaining,
		AnsweredCount:  len(m.answered),
		Participants:   m.ledger.size(),
		LastEventID:    s.Watermark,
	}
}
