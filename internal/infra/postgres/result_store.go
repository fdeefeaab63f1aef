package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"clicker-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PaperSource resolves the paper a submission answers, for scoring.
type PaperSource interface {
	GetPaper(ctx context.Context, paperID string) (domain.Paper, error)
}

// ResultStore is a submission target that scores a ledger and persists one row per
// participant. Rows are written in a single transaction; a resubmitted session keeps
// the rows it already has.
type ResultStore struct {
	pool   *pgxpool.Pool
	papers PaperSource
}

func NewResultStore(pool *pgxpool.Pool, papers PaperSource) *ResultStore {
	return &ResultStore{pool: pool, papers: papers}
}

func (s *ResultStore) Submit(ctx context.Context, submission domain.Submission) error {
	paper, err := s.papers.GetPaper(ctx, submission.PaperID)
	if err != nil {
		return fmt.Errorf("resolve paper for scoring: %w", err)
	}
	scores := domain.Score(paper, submission.Answers)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, score := range scores {
		answers, err := json.Marshal(submission.Answers[score.Participant])
		if err != nil {
			return fmt.Errorf("encode answers: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_results
				(session_id, paper_id, participant, answers, correct, total, percentage, passed)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
			ON CONFLICT (session_id, participant) DO NOTHING`,
			submission.SessionID, submission.PaperID, score.Participant, string(answers),
			score.Correct, score.Total, score.Percentage, score.Passed,
		)
		if err != nil {
			return fmt.Errorf("insert result for %s: %w", score.Participant, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Results returns the stored rows of a session ordered by participant.
func (s *ResultStore) Results(ctx context.Context, sessionID string) ([]domain.ParticipantScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant, correct, total, percentage, passed
		FROM session_results
		WHERE session_id=$1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	var out []domain.ParticipantScore
	for rows.Next() {
		var score domain.ParticipantScore
		if err := rows.Scan(&score.Participant, &score.Correct, &score.Total, &score.Percentage, &score.Passed); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, score)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out, nil
}
