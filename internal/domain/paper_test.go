package domain

import (
	"errors"
	"testing"
)

func validQuestion(id int64) Question {
	return Question{ID: id, Prompt: "Pick one", Options: [OptionCount]string{"a", "b", "c", "d"}, CorrectIndex: 3}
}

func TestPaperValidate(t *testing.T) {
	outOfRange := validQuestion(2)
	outOfRange.CorrectIndex = OptionCount
	blankOption := validQuestion(2)
	blankOption.Options[2] = "  "
	noPrompt := validQuestion(2)
	noPrompt.Prompt = ""

	cases := []struct {
		name  string
		paper Paper
		want  error
	}{
		{name: "valid", paper: Paper{ID: "p", Questions: []Question{validQuestion(1), validQuestion(2)}}},
		{name: "no questions", paper: Paper{ID: "p"}, want: ErrEmptyPaper},
		{name: "correct index off the card", paper: Paper{ID: "p", Questions: []Question{validQuestion(1), outOfRange}}, want: ErrInvalidPaper},
		{name: "blank option", paper: Paper{ID: "p", Questions: []Question{blankOption}}, want: ErrInvalidPaper},
		{name: "blank prompt", paper: Paper{ID: "p", Questions: []Question{noPrompt}}, want: ErrInvalidPaper},
		{name: "duplicate id", paper: Paper{ID: "p", Questions: []Question{validQuestion(1), validQuestion(1)}}, want: ErrInvalidPaper},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.paper.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected valid paper, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
