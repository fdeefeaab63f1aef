package memory

import (
	"context"
	"sync"

	"clicker-quiz-service/internal/domain"
)

// SubmissionLog is a Submitter that keeps accepted ledgers in memory. It is used when no
// submission endpoint is configured.
type SubmissionLog struct {
	mu          sync.Mutex
	submissions []domain.Submission
}

func NewSubmissionLog() *SubmissionLog {
	return &SubmissionLog{}
}

func (l *SubmissionLog) Submit(ctx context.Context, submission domain.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	submission.Answers = submission.Answers.Clone()
	l.submissions = append(l.submissions, submission)
	return nil
}

// Submissions returns every accepted submission.
func (l *SubmissionLog) Submissions() []domain.Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Submission, len(l.submissions))
	copy(out, l.submissions)
	return out
}
