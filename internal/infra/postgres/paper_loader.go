package postgres

import (
	"context"
	"errors"
	"fmt"

	"clicker-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PaperLoader loads question papers from the question_papers and quiz_questions tables.
type PaperLoader struct {
	pool *pgxpool.Pool
}

func NewPaperLoader(pool *pgxpool.Pool) *PaperLoader {
	return &PaperLoader{pool: pool}
}

// LoadPaper returns the paper with its questions in id order.
func (l *PaperLoader) LoadPaper(ctx context.Context, paperID string) (domain.Paper, error) {
	paper := domain.Paper{ID: paperID}
	err := l.pool.QueryRow(ctx, `SELECT name FROM question_papers WHERE id=$1`, paperID).Scan(&paper.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", paperID, domain.ErrPaperNotFound)
	}
	if err != nil {
		return domain.Paper{}, fmt.Errorf("load paper: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, prompt, option_a, option_b, option_c, option_d, correct_index
		FROM quiz_questions
		WHERE paper_id=$1
		ORDER BY id`, paperID)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &q.CorrectIndex); err != nil {
			return domain.Paper{}, fmt.Errorf("scan question: %w", err)
		}
		paper.Questions = append(paper.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Paper{}, fmt.Errorf("load questions: %w", err)
	}
	return paper, nil
}
