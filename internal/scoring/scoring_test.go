package scoring

import (
	"testing"

	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

func strPtr(s string) *string { return &s }

func twoQuestionExam(negative bool, penalty float64) *model.Exam {
	return &model.Exam{
		NegativeMarking:         negative,
		NegativeMarkPerQuestion: penalty,
		Questions: []model.Question{
			{
				ID:              "q1",
				Prompt:          "2+2?",
				Options:         []model.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}, {ID: "c", Text: "5"}, {ID: "d", Text: "6"}},
				CorrectOptionID: "b",
				Marks:           1,
			},
			{
				ID:              "q2",
				Prompt:          "3*3?",
				Options:         []model.Option{{ID: "a", Text: "6"}, {ID: "b", Text: "9"}, {ID: "c", Text: "12"}, {ID: "d", Text: "27"}},
				CorrectOptionID: "b",
				Marks:           1,
			},
		},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		exam      *model.Exam
		answers   []model.Answer
		wantScore float64
		wantMax   float64
	}{
		{
			name: "one correct one unanswered",
			exam: twoQuestionExam(false, 0),
			answers: []model.Answer{
				{QuestionID: "q1", SelectedOptionID: strPtr("b"), Visited: true},
				{QuestionID: "q2", SelectedOptionID: nil, Visited: true},
			},
			wantScore: 1,
			wantMax:   2,
		},
		{
			name: "all wrong with negative marking clamps at zero",
			exam: twoQuestionExam(true, 0.5),
			answers: []model.Answer{
				{QuestionID: "q1", SelectedOptionID: strPtr("a")},
				{QuestionID: "q2", SelectedOptionID: strPtr("c")},
			},
			wantScore: 0,
			wantMax:   2,
		},
		{
			name: "negative marking deducts per wrong answer",
			exam: twoQuestionExam(true, 0.25),
			answers: []model.Answer{
				{QuestionID: "q1", SelectedOptionID: strPtr("b")},
				{QuestionID: "q2", SelectedOptionID: strPtr("a")},
			},
			wantScore: 0.75,
			wantMax:   2,
		},
		{
			name:      "empty answer set scores zero",
			exam:      twoQuestionExam(true, 1),
			answers:   nil,
			wantScore: 0,
			wantMax:   2,
		},
		{
			name: "unknown question ids are ignored",
			exam: twoQuestionExam(false, 0),
			answers: []model.Answer{
				{QuestionID: "ghost", SelectedOptionID: strPtr("b")},
				{QuestionID: "q2", SelectedOptionID: strPtr("b")},
			},
			wantScore: 1,
			wantMax:   2,
		},
		{
			name: "empty selected option counts as unanswered",
			exam: twoQuestionExam(true, 0.5),
			answers: []model.Answer{
				{QuestionID: "q1", SelectedOptionID: strPtr("")},
				{QuestionID: "q2", SelectedOptionID: strPtr("b")},
			},
			wantScore: 1,
			wantMax:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, maxScore := Score(tt.exam, tt.answers)
			if score != tt.wantScore {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			if maxScore != tt.wantMax {
				t.Errorf("maxScore = %v, want %v", maxScore, tt.wantMax)
			}
		})
	}
}

func TestScoreWeightedMarksRounding(t *testing.T) {
	exam := &model.Exam{
		NegativeMarking:         true,
		NegativeMarkPerQuestion: 0.33,
		Questions: []model.Question{
			{ID: "q1", CorrectOptionID: "a", Marks: 2.5},
			{ID: "q2", CorrectOptionID: "a", Marks: 1.5},
			{ID: "q3", CorrectOptionID: "a", Marks: 1},
		},
	}
	answers := []model.Answer{
		{QuestionID: "q1", SelectedOptionID: strPtr("a")},
		{QuestionID: "q2", SelectedOptionID: strPtr("b")},
		{QuestionID: "q3", SelectedOptionID: strPtr("b")},
	}

	score, maxScore := Score(exam, answers)
	if score != 1.84 {
		t.Errorf("score = %v, want 1.84", score)
	}
	if maxScore != 5 {
		t.Errorf("maxScore = %v, want 5", maxScore)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	exam := twoQuestionExam(true, 0.5)
	answers := []model.Answer{
		{QuestionID: "q1", SelectedOptionID: strPtr("b")},
		{QuestionID: "q2", SelectedOptionID: strPtr("a")},
	}

	first, _ := Score(exam, answers)
	for i := 0; i < 10; i++ {
		got, _ := Score(exam, answers)
		if got != first {
			t.Fatalf("run %d: score = %v, want %v", i, got, first)
		}
	}
}
