package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clicker-quiz-service/internal/domain"
)

// Submission metadata travels in headers; the body is the bare ledger the end-test
// endpoint reads participant by participant.
const (
	HeaderSessionID = "X-Session-Id"
	HeaderPaperID   = "X-Paper-Id"
	HeaderAttempt   = "X-Submission-Attempt"
)

// SubmitClient posts a finished ledger to the end-test endpoint.
type SubmitClient struct {
	base *baseClient
}

func NewSubmitClient(url string, timeout time.Duration) *SubmitClient {
	return &SubmitClient{base: newBaseClient(url, timeout)}
}

// Submit succeeds only on a 2xx response; anything else wraps domain.ErrSubmissionRejected.
func (c *SubmitClient) Submit(ctx context.Context, submission domain.Submission) error {
	answers := submission.Answers
	if answers == nil {
		answers = domain.Ledger{}
	}
	body, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	header := http.Header{}
	if submission.SessionID != "" {
		header.Set(HeaderSessionID, submission.SessionID)
	}
	if submission.PaperID != "" {
		header.Set(HeaderPaperID, submission.PaperID)
	}
	header.Set(HeaderAttempt, strconv.Itoa(submission.Attempt))

	if _, err := c.base.do(ctx, http.MethodPost, "", bytes.NewReader(body), header); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSubmissionRejected, err)
	}
	return nil
}
