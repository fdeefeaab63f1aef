package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no running session has the requested id.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when a command reaches a session that has been torn down.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrPaperNotFound indicates the assessment paper could not be loaded.
	ErrPaperNotFound = errors.New("assessment paper not found")
	// ErrEmptyPaper indicates the paper exists but has no questions.
	ErrEmptyPaper = errors.New("assessment paper has no questions")
	// ErrInvalidPaper indicates a question that cannot be shown on a four option card.
	ErrInvalidPaper = errors.New("assessment paper is invalid")
	// ErrNoKeyEvents is returned by a key event feed that has not seen a press yet.
	ErrNoKeyEvents = errors.New("no key events yet")
	// ErrUnknownAction indicates an operator command that maps to no transition.
	ErrUnknownAction = errors.New("unknown operator action")
	// ErrSubmissionRejected indicates the submission endpoint answered with a failure.
	ErrSubmissionRejected = errors.New("submission rejected")
)
