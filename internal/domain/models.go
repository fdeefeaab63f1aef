package domain

import "time"

// OptionCount is the number of options on every question card.
const OptionCount = 4

// Question is one multiple choice card. CorrectIndex is only read by scoring.
type Question struct {
	ID           int64               `json:"id" yaml:"id"`
	Prompt       string              `json:"prompt" yaml:"prompt"`
	Options      [OptionCount]string `json:"options" yaml:"options"`
	CorrectIndex int                 `json:"correctIndex" yaml:"correctIndex"`
}

// Paper is an assessment paper: an ordered, immutable list of questions.
type Paper struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// KeyEvent is one button press reported by the hardware bridge.
type KeyEvent struct {
	ID          int64     `json:"id"`
	Participant string    `json:"participant"`
	Info        string    `json:"info"`
	ReceivedAt  time.Time `json:"receivedAt,omitempty"`
}

// Ledger maps a participant to one optional selected option per question.
type Ledger map[string][]*int

// Clone returns a deep copy so callers never share cells with the state machine.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for participant, row := range l {
		cp := make([]*int, len(row))
		for i, cell := range row {
			if cell != nil {
				v := *cell
				cp[i] = &v
			}
		}
		out[participant] = cp
	}
	return out
}

// Answer returns the recorded option for a cell, if any.
func (l Ledger) Answer(participant string, question int) (int, bool) {
	row, ok := l[participant]
	if !ok || question < 0 || question >= len(row) || row[question] == nil {
		return 0, false
	}
	return *row[question], true
}

// QuestionView is the part of a question the display may show.
type QuestionView struct {
	ID      int64               `json:"id"`
	Prompt  string              `json:"prompt"`
	Options [OptionCount]string `json:"options"`
}

// SessionSnapshot is a read-only view of a running session.
type SessionSnapshot struct {
	SessionID      string        `json:"sessionId"`
	PaperID        string        `json:"paperId"`
	QuestionIndex  int           `json:"questionIndex"`
	TotalQuestions int           `json:"totalQuestions"`
	Question       *QuestionView `json:"question,omitempty"`
	Paused         bool          `json:"paused"`
	Ended          bool          `json:"ended"`
	Completed      bool          `json:"completed"`
	TimeRemaining  int           `json:"timeRemaining"`
	AnsweredCount  int           `json:"answeredCount"`
	Participants   int           `json:"participants"`
	LastEventID    *int64        `json:"lastEventId,omitempty"`
	LastError      string        `json:"lastError,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Submission is the payload handed to the submission endpoint.
type Submission struct {
	SessionID string `json:"sessionId"`
	PaperID   string `json:"paperId"`
	Attempt   int    `json:"attempt"`
	Answers   Ledger `json:"answers"`
}

// SessionResult is handed to the completion side once a submission is accepted.
type SessionResult struct {
	SessionID   string             `json:"sessionId"`
	PaperID     string             `json:"paperId"`
	Answers     Ledger             `json:"answers"`
	Scores      []ParticipantScore `json:"scores"`
	CompletedAt time.Time          `json:"completedAt"`
}

// SessionEventType names a lifecycle event published for other services.
type SessionEventType string

const (
	EventSessionStarted   SessionEventType = "session.started"
	EventSubmissionFailed SessionEventType = "session.submission_failed"
	EventSessionCompleted SessionEventType = "session.completed"
	EventSessionStopped   SessionEventType = "session.stopped"
)

// SessionEvent is a lifecycle notification.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"sessionId"`
	PaperID   string           `json:"paperId"`
	Attempt   int              `json:"attempt,omitempty"`
	Error     string           `json:"error,omitempty"`
	Result    *SessionResult   `json:"result,omitempty"`
	At        time.Time        `json:"at"`
}
