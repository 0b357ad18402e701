package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates the fixed vocabulary of proctoring events.
type ViolationType string

const (
	ViolationFullscreenExit   ViolationType = "FULLSCREEN_EXIT"
	ViolationVisibilityHidden ViolationType = "VISIBILITY_HIDDEN"
	ViolationWindowBlur       ViolationType = "WINDOW_BLUR"
	ViolationNavigation       ViolationType = "NAVIGATION"
	ViolationDevtoolsShortcut ViolationType = "DEVTOOLS_SHORTCUT"
	ViolationDevtoolsResize   ViolationType = "DEVTOOLS_RESIZE"
	ViolationReloadShortcut   ViolationType = "RELOAD_SHORTCUT"
	ViolationOffline          ViolationType = "OFFLINE"
	ViolationAutoSubmit       ViolationType = "AUTO_SUBMIT"
)

// Violation is a timestamped, typed record of a detected environment
// deviation or policy event. Immutable once appended. Meta is free-form
// diagnostic payload and is never consulted for policy decisions.
type Violation struct {
	Type ViolationType  `json:"type"`
	At   time.Time      `json:"at"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Answer holds a candidate's state for one question.
type Answer struct {
	QuestionID       string  `json:"questionId"`
	SelectedOptionID *string `json:"selectedOptionId"`
	Visited          bool    `json:"visited"`
	MarkedForReview  bool    `json:"markedForReview"`
}

// Attempt is one candidate's progress record for one exam. At most one
// attempt exists per (user, exam) pair.
type Attempt struct {
	ID                   uuid.UUID   `json:"id"`
	UserID               uuid.UUID   `json:"user_id"`
	ExamID               uuid.UUID   `json:"exam_id"`
	StartedAt            *time.Time  `json:"started_at"`
	SubmittedAt          *time.Time  `json:"submitted_at"`
	TimeTakenSeconds     int         `json:"time_taken_seconds"`
	Answers              []Answer    `json:"answers"`
	Violations           []Violation `json:"violations"`
	CurrentQuestionIndex int         `json:"current_question_index"`
	ExamExitCount        int         `json:"exam_exit_count"`
	LastExitTimestamp    *time.Time  `json:"last_exit_timestamp"`
	IsInRecovery         bool        `json:"is_in_recovery"`
	// DeviceFingerprint is a client-generated opaque token bound first-writer-
	// wins. It is a weak session-affinity token, not a device identity.
	DeviceFingerprint string    `json:"device_fingerprint"`
	Score             float64   `json:"score"`
	MaxScore          float64   `json:"max_score"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsSubmitted reports whether the attempt has reached its terminal state.
func (a *Attempt) IsSubmitted() bool {
	return a.SubmittedAt != nil
}

// PlaceholderAnswers builds the unanswered answer list for a fresh attempt,
// one entry per exam question in exam order.
func PlaceholderAnswers(exam *Exam) []Answer {
	answers := make([]Answer, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		answers = append(answers, Answer{QuestionID: q.ID})
	}
	return answers
}

// ProgressPatch is the client snapshot merged by a progress save. Nil slices
// and nil pointers mean "field absent"; present answers/violations lists
// replace the stored lists wholesale.
type ProgressPatch struct {
	Answers              []Answer    `json:"answers"`
	Violations           []Violation `json:"violations"`
	CurrentQuestionIndex *int        `json:"currentQuestionIndex"`
	ExamExitCount        *int        `json:"examExitCount"`
	LastExitTimestamp    *time.Time  `json:"lastExitTimestamp"`
	IsInRecovery         *bool       `json:"isInRecovery"`
	DeviceFingerprint    string      `json:"deviceFingerprint"`
}

// SubmitRequest is the final snapshot applied at submission.
type SubmitRequest struct {
	TimeTakenSeconds *int        `json:"timeTakenSeconds"`
	Answers          []Answer    `json:"answers"`
	Violations       []Violation `json:"violations"`
}

// SubmitResult is what the candidate sees after a (possibly repeated)
// submission.
type SubmitResult struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	Submitted   bool      `json:"submitted"`
	SubmittedAt time.Time `json:"submitted_at"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
}

// SessionStatus is the server-authoritative read projection of an attempt.
// RemainingSeconds and EndTime are computed from server time only.
type SessionStatus struct {
	AttemptID            uuid.UUID   `json:"attempt_id"`
	UserID               uuid.UUID   `json:"user_id"`
	ExamID               uuid.UUID   `json:"exam_id"`
	StartedAt            *time.Time  `json:"started_at"`
	EndTime              *time.Time  `json:"end_time"`
	RemainingSeconds     *int        `json:"remaining_time"`
	Answers              []Answer    `json:"answers"`
	Violations           []Violation `json:"violations"`
	CurrentQuestionIndex int         `json:"current_question_index"`
	ExamExitCount        int         `json:"exam_exit_count"`
	LastExitTimestamp    *time.Time  `json:"last_exit_timestamp"`
	IsInRecovery         bool        `json:"is_in_recovery"`
	DeviceFingerprint    string      `json:"device_fingerprint"`
	IsSubmitted          bool        `json:"is_submitted"`
	SubmittedAt          *time.Time  `json:"submitted_at"`
	ServerNow            time.Time   `json:"server_now"`
}

// AttemptReview is the post-submission review payload: the candidate's
// answers alongside the answer key.
type AttemptReview struct {
	AttemptID        uuid.UUID        `json:"attempt_id"`
	Score            float64          `json:"score"`
	MaxScore         float64          `json:"max_score"`
	TimeTakenSeconds int              `json:"time_taken_seconds"`
	SubmittedAt      *time.Time       `json:"submitted_at"`
	Answers          []Answer         `json:"answers"`
	Paper            *ExamPaper       `json:"paper"`
	Key              []QuestionAnswer `json:"key"`
}

// QuestionAnswer is one entry of the published answer key.
type QuestionAnswer struct {
	QuestionID      string `json:"question_id"`
	CorrectOptionID string `json:"correct_option_id"`
	Explanation     string `json:"explanation,omitempty"`
}
