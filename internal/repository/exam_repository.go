package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

// ExamRepository handles exam definition data access. Exams are authored by
// an external subsystem; this service reads them and only writes via seeding.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, instructions, start_at, end_at,
	duration_minutes, negative_marking, negative_mark_per_question, questions,
	created_at, updated_at`

// GetByID retrieves a full exam definition including its question list.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id,
	).Scan(
		&e.ID, &e.Title, &e.Description, &e.Instructions, &e.StartAt, &e.EndAt,
		&e.DurationMinutes, &e.NegativeMarking, &e.NegativeMarkPerQuestion,
		&e.Questions, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts an exam definition. Used by the seed tool and test fixtures.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, instructions, start_at, end_at,
		   duration_minutes, negative_marking, negative_mark_per_question, questions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.Instructions, e.StartAt, e.EndAt,
		e.DurationMinutes, e.NegativeMarking, e.NegativeMarkPerQuestion, e.Questions,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// List returns all exam definitions ordered by start time.
func (r *ExamRepository) List(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams ORDER BY start_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Instructions, &e.StartAt, &e.EndAt,
			&e.DurationMinutes, &e.NegativeMarking, &e.NegativeMarkPerQuestion,
			&e.Questions, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
