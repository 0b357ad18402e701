package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/siddharthareddy0/quiz-hosting/internal/response"
	"github.com/siddharthareddy0/quiz-hosting/internal/service"
)

// AdminHandler handles exam oversight endpoints.
type AdminHandler struct {
	attemptService *service.AttemptService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(attemptService *service.AttemptService) *AdminHandler {
	return &AdminHandler{attemptService: attemptService}
}

// ListAttempts godoc
// GET /api/v1/admin/exams/:exam_id/attempts
// Lists every attempt for an exam, submitted first, ranked by score.
func (h *AdminHandler) ListAttempts(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempts, err := h.attemptService.ListAttempts(c.Request.Context(), examID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// Rescore godoc
// POST /api/v1/admin/exams/:exam_id/attempts/:user_id/rescore
// Recomputes a submitted attempt's score from its stored answers. Used after
// a retroactive answer key correction.
func (h *AdminHandler) Rescore(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.Rescore(c.Request.Context(), userID, examID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}
