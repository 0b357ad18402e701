package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

// AttemptRepository handles attempt data access. One attempt row is the
// authoritative record of a candidate's progress on one exam; concurrency
// control is per-row with the (user_id, exam_id) uniqueness constraint as the
// backstop for creation races.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, exam_id, started_at, submitted_at,
	time_taken_seconds, answers, violations, current_question_index,
	exam_exit_count, last_exit_timestamp, is_in_recovery, device_fingerprint,
	score, max_score, created_at, updated_at`

func scanAttempt(row interface{ Scan(dest ...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.ExamID, &a.StartedAt, &a.SubmittedAt,
		&a.TimeTakenSeconds, &a.Answers, &a.Violations, &a.CurrentQuestionIndex,
		&a.ExamExitCount, &a.LastExitTimestamp, &a.IsInRecovery, &a.DeviceFingerprint,
		&a.Score, &a.MaxScore, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByUserAndExam retrieves the attempt for a (user, exam) pair.
func (r *AttemptRepository) GetByUserAndExam(ctx context.Context, userID, examID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1 AND exam_id = $2`, userID, examID))
}

// Create inserts a fresh attempt with placeholder answers. Returns
// pgx.ErrNoRows when a concurrent creation won the uniqueness race; callers
// re-fetch the winner.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (user_id, exam_id, answers, violations)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, exam_id) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		a.UserID, a.ExamID, a.Answers, a.Violations,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// UpdateProgress persists a merged progress snapshot. The submitted_at guard
// makes the write crash-safe: a concurrently finalized attempt is never
// overwritten. Returns false when the guard rejected the write.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, a *model.Attempt) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET started_at = $2,
		     answers = $3,
		     violations = $4,
		     current_question_index = $5,
		     exam_exit_count = $6,
		     last_exit_timestamp = $7,
		     is_in_recovery = $8,
		     device_fingerprint = $9,
		     updated_at = NOW()
		 WHERE id = $1 AND submitted_at IS NULL`,
		a.ID, a.StartedAt, a.Answers, a.Violations, a.CurrentQuestionIndex,
		a.ExamExitCount, a.LastExitTimestamp, a.IsInRecovery, a.DeviceFingerprint,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize stamps submission and score in one write. The submitted_at guard
// collapses the forced-submit race to a single winner; losers see false and
// re-read the prior result.
func (r *AttemptRepository) Finalize(ctx context.Context, a *model.Attempt) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $2,
		     violations = $3,
		     time_taken_seconds = $4,
		     score = $5,
		     max_score = $6,
		     submitted_at = $7,
		     is_in_recovery = FALSE,
		     updated_at = NOW()
		 WHERE id = $1 AND submitted_at IS NULL`,
		a.ID, a.Answers, a.Violations, a.TimeTakenSeconds,
		a.Score, a.MaxScore, a.SubmittedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateScore rewrites only the scoring fields of a submitted attempt. Used
// by the admin recompute path.
func (r *AttemptRepository) UpdateScore(ctx context.Context, id uuid.UUID, score, maxScore float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET score = $2, max_score = $3, updated_at = NOW()
		 WHERE id = $1 AND submitted_at IS NOT NULL`,
		id, score, maxScore)
	return err
}

// ListByExam returns all attempts for an exam, submitted first, best score
// first with time taken and submission time as stable tie-breakers.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = $1
		 ORDER BY submitted_at IS NULL, score DESC, time_taken_seconds ASC, submitted_at ASC`,
		examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
