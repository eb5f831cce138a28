package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cognivia/exam-engine/internal/codec"
	"github.com/cognivia/exam-engine/internal/model"
	"github.com/cognivia/exam-engine/internal/response"
	"github.com/cognivia/exam-engine/internal/session"
	"github.com/cognivia/exam-engine/internal/validator"
)

// SessionHandler exposes the attempt lifecycle over REST: load, navigation,
// answer writes, review flags and the gated submit flow.
type SessionHandler struct {
	registry *session.Registry
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *session.Registry, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// LoadAttempt godoc
// POST /api/v1/attempts/load
// Starts or resumes the candidate's attempt. Idempotent per (test, user):
// reloading reattaches to the live attempt with its clocks intact.
func (h *SessionHandler) LoadAttempt(c *gin.Context) {
	var req model.LoadAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, attempt, err := h.registry.Load(c.Request.Context(), req.TestID, req.UserID)
	if err != nil {
		h.log.Warn().Err(err).Int64("test_id", req.TestID).Int64("user_id", req.UserID).Msg("Attempt load failed")
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamLoad)
		return
	}

	st := ctrl.State()
	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": attempt.AttemptID,
		"state":      st,
	})
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id/state
// Returns the full attempt projection plus both clocks.
func (h *SessionHandler) GetState(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": ctrl.State()})
}

// GetSummary godoc
// GET /api/v1/attempts/:attempt_id/summary
// Returns per-section and whole-attempt status counts for the sidebar.
func (h *SessionHandler) GetSummary(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"summary": ctrl.SummaryNow()})
}

// Jump godoc
// POST /api/v1/attempts/:attempt_id/jump
// Navigates to a question in the current section and returns it with the
// candidate's editable answer value.
func (h *SessionHandler) Jump(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.JumpRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := ctrl.JumpTo(c.Request.Context(), req.QuestionID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": view})
}

// SubmitAnswer godoc
// POST /api/v1/attempts/:attempt_id/answer
// Saves the candidate's answer. Status advances only after the platform
// confirms the write; on failure the client retries.
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.AnswerEditRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := ctrl.SubmitAnswer(c.Request.Context(), &req)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": view})
}

// ClearResponse godoc
// POST /api/v1/attempts/:attempt_id/clear
// Resets a question to its empty value locally. Nothing is written upstream
// until the next explicit save.
func (h *SessionHandler) ClearResponse(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.QuestionRefRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := ctrl.ClearResponse(c.Request.Context(), req.QuestionID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": view})
}

// ToggleReview godoc
// POST /api/v1/attempts/:attempt_id/review
// Flips the question's mark-for-review flag.
func (h *SessionHandler) ToggleReview(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.QuestionRefRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	status, err := ctrl.ToggleReview(c.Request.Context(), req.QuestionID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID, "status": status})
}

// RequestSectionSubmit godoc
// POST /api/v1/attempts/:attempt_id/section-submit
// Asks to leave the current section. A rejected gate is a normal result
// carrying the reason, not an error.
func (h *SessionHandler) RequestSectionSubmit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	res, err := ctrl.RequestSectionSubmit()
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"gate": res})
}

// RequestTestSubmit godoc
// POST /api/v1/attempts/:attempt_id/test-submit
// Asks to end the whole attempt, gated on minimum attempt time.
func (h *SessionHandler) RequestTestSubmit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	res, err := ctrl.RequestTestSubmit()
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"gate": res})
}

// ConfirmSubmit godoc
// POST /api/v1/attempts/:attempt_id/confirm-submit
// Executes the pending section or test submit.
func (h *SessionHandler) ConfirmSubmit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.ConfirmPendingSubmit(c.Request.Context()); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": ctrl.State().State})
}

// CancelSubmit godoc
// POST /api/v1/attempts/:attempt_id/cancel-submit
// Abandons an unconfirmed submit and returns to the section.
func (h *SessionHandler) CancelSubmit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.CancelPendingSubmit(); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": model.StateInSection})
}

// Finalize godoc
// POST /api/v1/attempts/:attempt_id/finalize
// Ends the attempt directly, used as the retry affordance after a failed
// confirm. The expired test clock never blocks a retry.
func (h *SessionHandler) Finalize(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.FinalizeAttempt(c.Request.Context()); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": model.StateFinalized})
}

// controller resolves the attempt id path param to its live controller.
func (h *SessionHandler) controller(c *gin.Context) (*session.Controller, bool) {
	attemptID, err := strconv.ParseInt(c.Param("attempt_id"), 10, 64)
	if err != nil || attemptID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}
	ctrl, err := h.registry.Get(attemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	}
	return ctrl, true
}

// failSession maps session errors to response codes.
func (h *SessionHandler) failSession(c *gin.Context, err error) {
	var de *codec.DecodeError
	switch {
	case errors.Is(err, session.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotFound)
	case errors.Is(err, session.ErrAlreadyFinalized):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinalized)
	case errors.Is(err, session.ErrNoPendingSubmit):
		response.Fail(c, http.StatusConflict, response.ErrNoPendingSubmit)
	case errors.Is(err, session.ErrNoNextSection):
		response.Fail(c, http.StatusConflict, response.ErrNoNextSection)
	case errors.Is(err, session.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, session.ErrLoadFailed):
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamLoad)
	case errors.Is(err, session.ErrSubmitFailed):
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamWrite)
	case errors.Is(err, codec.ErrInvalidEdit):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidAnswer)
	case errors.As(err, &de):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrAnswerUndecodable)
	default:
		h.log.Error().Err(err).Msg("Unhandled session error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
