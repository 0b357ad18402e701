package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/middleware"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
	"github.com/siddharthareddy0/quiz-hosting/internal/response"
	"github.com/siddharthareddy0/quiz-hosting/internal/service"
	"github.com/siddharthareddy0/quiz-hosting/internal/validator"
	"github.com/siddharthareddy0/quiz-hosting/internal/worker"
)

// AttemptHandler handles the candidate-facing exam session endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
	authService    *service.AuthService
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, authService *service.AuthService, rdb *redis.Client, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		authService:    authService,
		rdb:            rdb,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// SessionStatus godoc
// GET /api/v1/candidate/exams/:exam_id/session-status
// Returns the server-authoritative attempt projection, creating the attempt
// on first contact.
func (h *AttemptHandler) SessionStatus(c *gin.Context) {
	claims, examID, ok := h.requireSession(c)
	if !ok {
		return
	}

	status, err := h.attemptService.SessionStatus(c.Request.Context(), claims.UserID, examID, middleware.GetFingerprint(c))
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": status})
}

// Paper godoc
// GET /api/v1/candidate/exams/:exam_id/paper
// Returns the sanitized question paper: prompts and options, no answer key.
func (h *AttemptHandler) Paper(c *gin.Context) {
	claims, examID, ok := h.requireSession(c)
	if !ok {
		return
	}

	_, exam, err := h.attemptService.GetOrCreate(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": exam.Paper()})
}

// Start godoc
// POST /api/v1/candidate/exams/:exam_id/start
// Binds the device and stamps the start time. Repeating from the same
// device is a no-op.
func (h *AttemptHandler) Start(c *gin.Context) {
	claims, examID, ok := h.requireSession(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), claims.UserID, examID, middleware.GetFingerprint(c))
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// SaveProgress godoc
// PUT /api/v1/candidate/exams/:exam_id/progress
// Merges a client snapshot into the attempt.
func (h *AttemptHandler) SaveProgress(c *gin.Context) {
	claims, examID, ok := h.requireSession(c)
	if !ok {
		return
	}

	var patch model.ProgressPatch
	if fields := validator.Bind(c, &patch); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if patch.DeviceFingerprint == "" {
		patch.DeviceFingerprint = middleware.GetFingerprint(c)
	}

	attempt, err := h.attemptService.SaveProgress(c.Request.Context(), claims.UserID, examID, &patch)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Submit godoc
// POST /api/v1/candidate/exams/:exam_id/submit
// Finalizes and scores the attempt. Idempotent: a repeat returns the
// original result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims, examID, ok := h.requireSession(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, examID, &req)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Review godoc
// GET /api/v1/candidate/exams/:exam_id/review
// Returns the submitted attempt alongside the answer key.
func (h *AttemptHandler) Review(c *gin.Context) {
	claims, examID, ok := h.requireSession(c)
	if !ok {
		return
	}

	review, err := h.attemptService.Review(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"review": review})
}

// flushRequest is the body of the unload-time flush. The token travels in
// the body because sendBeacon cannot set headers.
type flushRequest struct {
	Token string               `json:"token" binding:"required"`
	Patch *model.ProgressPatch `json:"patch" binding:"required"`
}

// Flush godoc
// POST /api/v1/exams/:exam_id/flush
// Best-effort snapshot delivery from an unloading page. Authenticates from
// the body, enqueues, and always answers 204; the sender is already gone.
func (h *AttemptHandler) Flush(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	var req flushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	claims, err := h.authService.ValidateToken(req.Token)
	if err != nil || claims.TokenType != service.TokenTypeCandidate {
		c.Status(http.StatusNoContent)
		return
	}

	payload := worker.FlushPayload{
		UserID: claims.UserID,
		ExamID: examID,
		Patch:  req.Patch,
	}
	raw, err := json.Marshal(payload)
	if err == nil && h.rdb != nil {
		if err := h.rdb.RPush(c.Request.Context(), config.WorkerKey.FlushQueue, raw).Err(); err != nil {
			h.log.Warn().Err(err).Msg("Flush enqueue failed")
		}
	}

	c.Status(http.StatusNoContent)
}

// requireSession pulls claims and the exam ID out of the request, writing
// the failure response itself when either is missing.
func (h *AttemptHandler) requireSession(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}

	return claims, examID, true
}

// failAttemptError maps attempt service sentinels to their HTTP shapes.
func failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrOutOfWindow):
		response.Fail(c, http.StatusBadRequest, response.ErrOutOfWindow)
	case errors.Is(err, service.ErrDeviceConflict):
		response.Fail(c, http.StatusForbidden, response.ErrDeviceConflict)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrNotSubmitted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
