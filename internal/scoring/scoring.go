// Package scoring grades submitted answer sets against an exam's answer key.
// Everything here is deterministic and side-effect-free so a score can be
// recomputed at any time without double counting.
package scoring

import (
	"math"

	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

// Score grades the submitted answers against the exam's answer key.
//
// Each answered question awards its marks when the selected option matches
// the correct one; a wrong answer deducts the exam's per-question penalty
// when negative marking is enabled. Unanswered questions contribute zero.
// The final score is clamped at zero and rounded to two decimal places.
// maxScore is the sum of all question marks regardless of the attempt.
func Score(exam *model.Exam, answers []model.Answer) (score, maxScore float64) {
	byID := make(map[string]*model.Question, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		byID[q.ID] = q
		maxScore += q.Marks
	}

	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			// Answers for unknown questions are ignored, not rejected.
			continue
		}
		if a.SelectedOptionID == nil || *a.SelectedOptionID == "" {
			continue
		}
		if *a.SelectedOptionID == q.CorrectOptionID {
			score += q.Marks
		} else if exam.NegativeMarking {
			score -= exam.NegativeMarkPerQuestion
		}
	}

	score = math.Max(0, round2(score))
	return score, round2(maxScore)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
