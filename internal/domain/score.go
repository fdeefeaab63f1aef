package domain

import (
	"math"
	"sort"
)

// PassPercentage is the minimum percentage counted as a pass.
const PassPercentage = 80

// ParticipantScore is the downstream scoring of one ledger row.
type ParticipantScore struct {
	Participant string  `json:"participant"`
	Correct     int     `json:"correct"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
	Passed      bool    `json:"passed"`
}

// Score compares every ledger row with the paper's correct indices.
// Rows are returned sorted by participant.
func Score(paper Paper, answers Ledger) []ParticipantScore {
	total := len(paper.Questions)
	scores := make([]ParticipantScore, 0, len(answers))
	for participant, row := range answers {
		correct := 0
		for i, cell := range row {
			if i < total && cell != nil && *cell == paper.Questions[i].CorrectIndex {
				correct++
			}
		}
		percentage := 0.0
		if total > 0 {
			percentage = math.Round(float64(correct)/float64(total)*10000) / 100
		}
		scores = append(scores, ParticipantScore{
			Participant: participant,
			Correct:     correct,
			Total:       total,
			Percentage:  percentage,
			Passed:      percentage >= PassPercentage,
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Participant < scores[j].Participant
	})
	return scores
}
