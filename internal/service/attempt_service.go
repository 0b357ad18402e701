package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
	"github.com/siddharthareddy0/quiz-hosting/internal/scoring"
	ws "github.com/siddharthareddy0/quiz-hosting/internal/websocket"
)

// ExamStore is the read-only view of exam definitions the attempt service
// needs. Satisfied by repository.ExamRepository.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// AttemptStore is the authoritative attempt persistence surface. Satisfied by
// repository.AttemptRepository; tests provide an in-memory implementation.
type AttemptStore interface {
	GetByUserAndExam(ctx context.Context, userID, examID uuid.UUID) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	UpdateProgress(ctx context.Context, a *model.Attempt) (bool, error)
	Finalize(ctx context.Context, a *model.Attempt) (bool, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score, maxScore float64) error
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error)
}

// AttemptService reconciles client-reported session state with the
// authoritative attempt record: device binding, submission immutability,
// server-computed remaining time, and idempotent scoring.
type AttemptService struct {
	exams    ExamStore
	attempts AttemptStore
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService. rdb may be nil; the start
// time cache and monitor publishing degrade to Postgres-only operation.
func NewAttemptService(exams ExamStore, attempts AttemptStore, rdb *redis.Client, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		exams:    exams,
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// GetOrCreate returns the attempt for (user, exam), lazily creating it with
// placeholder answers. Concurrent creations collapse to one winner via the
// (user_id, exam_id) uniqueness constraint.
func (s *AttemptService) GetOrCreate(ctx context.Context, userID, examID uuid.UUID) (*model.Attempt, *model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := s.attempts.GetByUserAndExam(ctx, userID, examID)
	if err == nil {
		return attempt, exam, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}

	attempt = &model.Attempt{
		UserID:     userID,
		ExamID:     examID,
		Answers:    model.PlaceholderAnswers(exam),
		Violations: []model.Violation{},
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the creation race; the winner's row is authoritative.
			attempt, err = s.attempts.GetByUserAndExam(ctx, userID, examID)
			if err != nil {
				return nil, nil, fmt.Errorf("concurrent create detected, but fetch failed: %w", err)
			}
			return attempt, exam, nil
		}
		return nil, nil, fmt.Errorf("create attempt: %w", err)
	}

	return attempt, exam, nil
}

// Start binds the device fingerprint (first writer wins) and establishes the
// attempt's start time. Fails with ErrOutOfWindow outside the exam's
// inclusive scheduling window and ErrDeviceConflict on a fingerprint
// mismatch. Idempotent on repeated calls from the same device.
func (s *AttemptService) Start(ctx context.Context, userID, examID uuid.UUID, fingerprint string) (*model.Attempt, error) {
	attempt, exam, err := s.GetOrCreate(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Before(exam.StartAt) || now.After(exam.EndAt) {
		return nil, ErrOutOfWindow
	}

	if err := checkFingerprint(attempt, fingerprint); err != nil {
		return nil, err
	}

	if attempt.IsSubmitted() {
		// Terminal; the status endpoint redirects the client.
		return attempt, nil
	}

	changed := false
	if attempt.DeviceFingerprint == "" && fingerprint != "" {
		attempt.DeviceFingerprint = fingerprint
		changed = true
	}
	if attempt.StartedAt == nil {
		attempt.StartedAt = &now
		changed = true
	}

	if changed {
		if _, err := s.attempts.UpdateProgress(ctx, attempt); err != nil {
			return nil, fmt.Errorf("persist start: %w", err)
		}
	}

	s.cacheStartTime(ctx, attempt)
	return attempt, nil
}

// SaveProgress merges a client snapshot into the attempt. Present fields
// overwrite stored state; answers and violations are full replacements, not
// incremental merges. The only hard failures are submission immutability and
// device mismatch.
func (s *AttemptService) SaveProgress(ctx context.Context, userID, examID uuid.UUID, patch *model.ProgressPatch) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByUserAndExam(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if attempt.IsSubmitted() {
		return nil, ErrAlreadySubmitted
	}
	if err := checkFingerprint(attempt, patch.DeviceFingerprint); err != nil {
		return nil, err
	}

	if attempt.DeviceFingerprint == "" && patch.DeviceFingerprint != "" {
		attempt.DeviceFingerprint = patch.DeviceFingerprint
	}
	if patch.Answers != nil {
		attempt.Answers = patch.Answers
	}
	if patch.Violations != nil {
		attempt.Violations = patch.Violations
	}
	if patch.CurrentQuestionIndex != nil {
		attempt.CurrentQuestionIndex = *patch.CurrentQuestionIndex
	}
	if patch.ExamExitCount != nil {
		attempt.ExamExitCount = *patch.ExamExitCount
	}
	if patch.LastExitTimestamp != nil {
		attempt.LastExitTimestamp = patch.LastExitTimestamp
	}
	if patch.IsInRecovery != nil {
		attempt.IsInRecovery = *patch.IsInRecovery
	}

	ok, err := s.attempts.UpdateProgress(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	if !ok {
		// Submission won the race between our read and this write.
		return nil, ErrAlreadySubmitted
	}

	s.publishMonitor(ctx, ws.EventProgress, attempt)
	return attempt, nil
}

// Submit finalizes the attempt: applies the final snapshot, scores it, and
// stamps submittedAt atomically with the score. A repeated submission is a
// no-op success returning the original result unchanged.
func (s *AttemptService) Submit(ctx context.Context, userID, examID uuid.UUID, req *model.SubmitRequest) (*model.SubmitResult, error) {
	attempt, exam, err := s.GetOrCreate(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	if attempt.IsSubmitted() {
		return submitResult(attempt), nil
	}

	if req.Answers != nil {
		attempt.Answers = req.Answers
	}
	if req.Violations != nil {
		attempt.Violations = req.Violations
	}
	if req.TimeTakenSeconds != nil {
		attempt.TimeTakenSeconds = *req.TimeTakenSeconds
	}

	attempt.Score, attempt.MaxScore = scoring.Score(exam, attempt.Answers)
	now := s.now()
	attempt.SubmittedAt = &now

	ok, err := s.attempts.Finalize(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		// A concurrent submission (forced-submit race) already won; return
		// its result unchanged.
		prior, err := s.attempts.GetByUserAndExam(ctx, userID, examID)
		if err != nil {
			return nil, fmt.Errorf("fetch prior submission: %w", err)
		}
		return submitResult(prior), nil
	}

	s.publishMonitor(ctx, ws.EventSubmitted, attempt)
	s.log.Info().
		Str("user_id", userID.String()).
		Str("exam_id", examID.String()).
		Float64("score", attempt.Score).
		Msg("Attempt submitted")

	return submitResult(attempt), nil
}

// SessionStatus returns the server-authoritative projection of the attempt,
// lazily creating it and binding the first non-empty fingerprint seen.
// Remaining time is computed from server time only.
func (s *AttemptService) SessionStatus(ctx context.Context, userID, examID uuid.UUID, fingerprint string) (*model.SessionStatus, error) {
	attempt, exam, err := s.GetOrCreate(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	if err := checkFingerprint(attempt, fingerprint); err != nil {
		return nil, err
	}
	if attempt.DeviceFingerprint == "" && fingerprint != "" && !attempt.IsSubmitted() {
		attempt.DeviceFingerprint = fingerprint
		if _, err := s.attempts.UpdateProgress(ctx, attempt); err != nil {
			return nil, fmt.Errorf("bind fingerprint: %w", err)
		}
	}

	status := &model.SessionStatus{
		AttemptID:            attempt.ID,
		UserID:               attempt.UserID,
		ExamID:               attempt.ExamID,
		StartedAt:            attempt.StartedAt,
		Answers:              attempt.Answers,
		Violations:           attempt.Violations,
		CurrentQuestionIndex: attempt.CurrentQuestionIndex,
		ExamExitCount:        attempt.ExamExitCount,
		LastExitTimestamp:    attempt.LastExitTimestamp,
		IsInRecovery:         attempt.IsInRecovery,
		DeviceFingerprint:    attempt.DeviceFingerprint,
		IsSubmitted:          attempt.IsSubmitted(),
		SubmittedAt:          attempt.SubmittedAt,
		ServerNow:            s.now(),
	}

	if attempt.StartedAt != nil && exam.DurationSeconds() > 0 {
		started := s.cachedStartTime(ctx, attempt)
		elapsed := int(status.ServerNow.Sub(started).Seconds())
		remaining := exam.DurationSeconds() - elapsed
		if remaining < 0 {
			remaining = 0
		}
		end := started.Add(time.Duration(exam.DurationSeconds()) * time.Second)
		status.RemainingSeconds = &remaining
		status.EndTime = &end
	}

	return status, nil
}

// Review returns the candidate's answers alongside the answer key. Only
// available once the attempt is submitted.
func (s *AttemptService) Review(ctx context.Context, userID, examID uuid.UUID) (*model.AttemptReview, error) {
	attempt, exam, err := s.GetOrCreate(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsSubmitted() {
		return nil, ErrNotSubmitted
	}

	key := make([]model.QuestionAnswer, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		key = append(key, model.QuestionAnswer{
			QuestionID:      q.ID,
			CorrectOptionID: q.CorrectOptionID,
			Explanation:     q.Explanation,
		})
	}

	return &model.AttemptReview{
		AttemptID:        attempt.ID,
		Score:            attempt.Score,
		MaxScore:         attempt.MaxScore,
		TimeTakenSeconds: attempt.TimeTakenSeconds,
		SubmittedAt:      attempt.SubmittedAt,
		Answers:          attempt.Answers,
		Paper:            exam.Paper(),
		Key:              key,
	}, nil
}

// Rescore re-runs the scoring engine over a submitted attempt's stored
// answers. Deterministic scoring makes this safe to repeat.
func (s *AttemptService) Rescore(ctx context.Context, userID, examID uuid.UUID) (*model.SubmitResult, error) {
	attempt, exam, err := s.GetOrCreate(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsSubmitted() {
		return nil, ErrNotSubmitted
	}

	attempt.Score, attempt.MaxScore = scoring.Score(exam, attempt.Answers)
	if err := s.attempts.UpdateScore(ctx, attempt.ID, attempt.Score, attempt.MaxScore); err != nil {
		return nil, fmt.Errorf("update score: %w", err)
	}
	return submitResult(attempt), nil
}

// ListAttempts returns all attempts for an exam, submitted first, ranked by
// score then time taken.
func (s *AttemptService) ListAttempts(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	attempts, err := s.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// checkFingerprint enforces first-writer-wins device binding: a bound
// attempt rejects a different non-empty fingerprint; an empty incoming
// fingerprint never conflicts.
func checkFingerprint(attempt *model.Attempt, incoming string) error {
	if attempt.DeviceFingerprint != "" && incoming != "" && attempt.DeviceFingerprint != incoming {
		return ErrDeviceConflict
	}
	return nil
}

func submitResult(a *model.Attempt) *model.SubmitResult {
	res := &model.SubmitResult{
		AttemptID: a.ID,
		Submitted: a.IsSubmitted(),
		Score:     a.Score,
		MaxScore:  a.MaxScore,
	}
	if a.SubmittedAt != nil {
		res.SubmittedAt = *a.SubmittedAt
	}
	return res
}

// cacheStartTime stores the attempt's start time in Redis so status checks
// avoid re-reading the row under polling load. Failures are logged, not
// surfaced; Postgres remains the source of truth.
func (s *AttemptService) cacheStartTime(ctx context.Context, attempt *model.Attempt) {
	if s.rdb == nil || attempt.StartedAt == nil {
		return
	}
	key := config.CacheKey.AttemptStartKey(attempt.ExamID.String(), attempt.UserID.String())
	if err := s.rdb.Set(ctx, key, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache start time")
	}
}

// cachedStartTime returns the cached start time, self-healing the cache from
// the already-loaded row on a miss.
func (s *AttemptService) cachedStartTime(ctx context.Context, attempt *model.Attempt) time.Time {
	fallback := *attempt.StartedAt
	if s.rdb == nil {
		return fallback
	}

	key := config.CacheKey.AttemptStartKey(attempt.ExamID.String(), attempt.UserID.String())
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		_ = s.rdb.Set(ctx, key, fallback.Unix(), 0)
		return fallback
	}
	if err != nil {
		return fallback
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Unix(unix, 0)
}

// publishMonitor pushes an integrity event onto the exam's monitor channel.
// Best-effort; the stream is advisory.
func (s *AttemptService) publishMonitor(ctx context.Context, event ws.Event, attempt *model.Attempt) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(ws.MonitorEvent{
		Event:          event,
		ExamID:         attempt.ExamID,
		UserID:         attempt.UserID,
		ViolationCount: len(attempt.Violations),
		ExamExitCount:  attempt.ExamExitCount,
		IsInRecovery:   attempt.IsInRecovery,
		At:             s.now(),
	})
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(attempt.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Monitor publish failed")
	}
}
