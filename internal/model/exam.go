package model

import (
	"time"

	"github.com/google/uuid"
)

// Option is one selectable choice of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a single multiple-choice question. Exactly one option id
// matches CorrectOptionID.
type Question struct {
	ID              string   `json:"id"`
	Prompt          string   `json:"prompt"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correct_option_id"`
	Marks           float64  `json:"marks"`
	Explanation     string   `json:"explanation,omitempty"`
}

// Exam represents an exam definition. Exams are authored elsewhere; this
// service consumes them read-only apart from seeding.
type Exam struct {
	ID                      uuid.UUID  `json:"id"`
	Title                   string     `json:"title"`
	Description             string     `json:"description,omitempty"`
	Instructions            string     `json:"instructions,omitempty"`
	StartAt                 time.Time  `json:"start_at"`
	EndAt                   time.Time  `json:"end_at"`
	DurationMinutes         int        `json:"duration_minutes"`
	NegativeMarking         bool       `json:"negative_marking"`
	NegativeMarkPerQuestion float64    `json:"negative_mark_per_question"`
	Questions               []Question `json:"questions"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// DurationSeconds returns the exam's time budget in seconds.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// MaxScore is the sum of all question marks regardless of attempt.
func (e *Exam) MaxScore() float64 {
	var total float64
	for _, q := range e.Questions {
		total += q.Marks
	}
	return total
}

// ExamPaper is the sanitized exam payload sent to candidates: no correct
// option ids, no explanations.
type ExamPaper struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Instructions    string          `json:"instructions,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	Questions       []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question stripped of its answer key.
type PaperQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
	Marks   float64  `json:"marks"`
}

// Paper builds the candidate-facing view of the exam.
func (e *Exam) Paper() *ExamPaper {
	questions := make([]PaperQuestion, 0, len(e.Questions))
	for _, q := range e.Questions {
		questions = append(questions, PaperQuestion{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
			Marks:   q.Marks,
		})
	}
	return &ExamPaper{
		ID:              e.ID,
		Title:           e.Title,
		Instructions:    e.Instructions,
		DurationMinutes: e.DurationMinutes,
		Questions:       questions,
	}
}
