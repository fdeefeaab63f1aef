package domain

import (
	"fmt"
	"strings"
)

// Validate checks that every question fits a four option card and has a correct
// option on it. A paper without questions yields ErrEmptyPaper.
func (p Paper) Validate() error {
	if len(p.Questions) == 0 {
		return fmt.Errorf("paper %s: %w", p.ID, ErrEmptyPaper)
	}
	seen := make(map[int64]struct{}, len(p.Questions))
	for i, q := range p.Questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("paper %s question %d: duplicate id %d: %w", p.ID, i+1, q.ID, ErrInvalidPaper)
		}
		seen[q.ID] = struct{}{}
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("paper %s question %d: empty prompt: %w", p.ID, i+1, ErrInvalidPaper)
		}
		for j, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("paper %s question %d: option %d is empty: %w", p.ID, i+1, j+1, ErrInvalidPaper)
			}
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
			return fmt.Errorf("paper %s question %d: correctIndex %d out of range: %w", p.ID, i+1, q.CorrectIndex, ErrInvalidPaper)
		}
	}
	return nil
}
