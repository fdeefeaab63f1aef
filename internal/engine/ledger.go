package engine

import "clicker-quiz-service/internal/domain"

// ledger holds one row of optional answers per participant. Cells are written once.
type ledger struct {
	questions int
	rows      map[string][]*int
}

func newLedger(questions int) ledger {
	return ledger{questions: questions, rows: make(map[string][]*int)}
}

// register makes sure the participant has a row, so silent remotes still show up in
// the submission payload.
func (l *ledger) register(participant string) []*int {
	row, ok := l.rows[participant]
	if !ok {
		row = make([]*int, l.questions)
		l.rows[participant] = row
	}
	return row
}

// record stores option in the cell unless it already holds an answer.
func (l *ledger) record(participant string, question, option int) bool {
	if question < 0 || question >= l.questions {
		return false
	}
	row := l.register(participant)
	if row[question] != nil {
		return false
	}
	v := option
	row[question] = &v
	return true
}

func (l *ledger) size() int {
	return len(l.rows)
}

func (l *ledger) snapshot() domain.Ledger {
	return domain.Ledger(l.rows).Clone()
}
