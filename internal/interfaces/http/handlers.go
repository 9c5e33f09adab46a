package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/quotation-workflow/internal/application/service"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
	"github.com/garyjia/quotation-workflow/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	orchestrator appwf.Orchestrator
	approvals    service.ApprovalGate
	revisions    service.RevisionLoop
	deadLetters  service.DeadLetterAdmin
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	orchestrator appwf.Orchestrator,
	approvals service.ApprovalGate,
	revisions service.RevisionLoop,
	deadLetters service.DeadLetterAdmin,
	logger Logger,
) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		approvals:    approvals,
		revisions:    revisions,
		deadLetters:  deadLetters,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// StartWorkflowRequest is the body of POST /api/quotations
type StartWorkflowRequest struct {
	DocumentID      int64   `json:"document_id" binding:"required"`
	ClientRef       string  `json:"client_ref"`
	ClientContact   string  `json:"client_contact"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	BusinessUnit    string  `json:"business_unit"`
	Owner           string  `json:"owner"`
	ExternalRef     string  `json:"external_ref"`
	AutoProgression *bool   `json:"auto_progression"`
}

// EventRequest is the body of POST /api/quotations/:id/events
type EventRequest struct {
	Event   string                 `json:"event" binding:"required"`
	Value   string                 `json:"value"`
	Note    string                 `json:"note"`
	Actor   string                 `json:"actor"`
	Payload map[string]interface{} `json:"payload"`
}

// DecisionRequest is the body of POST /api/quotations/:id/approval
type DecisionRequest struct {
	Status   string `json:"status" binding:"required"`
	Comments string `json:"comments"`
	Decider  string `json:"decider" binding:"required"`
}

// EditedRequest is the body of POST /api/quotations/:id/edited
type EditedRequest struct {
	Editor string `json:"editor"`
}

// ListDeadLettersRequest represents query parameters for listing dead letters
type ListDeadLettersRequest struct {
	All   bool `form:"all"`
	Limit int  `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// StartWorkflow handles POST /api/quotations
func (h *Handlers) StartWorkflow(c *gin.Context) {
	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if err := validateStart(&req); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	result, err := h.orchestrator.StartWorkflow(c.Request.Context(), appwf.StartRequest{
		DocumentID:      req.DocumentID,
		ClientRef:       utils.SanitizeString(req.ClientRef),
		ClientContact:   req.ClientContact,
		Amount:          req.Amount,
		Currency:        req.Currency,
		BusinessUnit:    utils.SanitizeString(req.BusinessUnit),
		Owner:           utils.SanitizeString(req.Owner),
		ExternalRef:     req.ExternalRef,
		AutoProgression: req.AutoProgression,
	})
	if err != nil {
		h.writeError(c, "Failed to start workflow", req.DocumentID, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// GetWorkflow handles GET /api/quotations/:id/workflow
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	state, err := h.orchestrator.GetState(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get workflow", id, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: state})
}

// ProgressWorkflow handles POST /api/quotations/:id/events
func (h *Handlers) ProgressWorkflow(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sig := domainwf.Signal{
		Trigger: domainwf.Trigger(req.Event),
		Value:   req.Value,
		Note:    utils.SanitizeString(req.Note),
		Actor:   req.Actor,
		Payload: req.Payload,
	}

	correlation := appwf.WithCorrelationID(c.GetString(requestIDKey))

	var result *appwf.Result
	var err error
	if sig.Trigger == domainwf.TriggerEditSignal {
		result, err = h.revisions.HandleEdited(c.Request.Context(), id, sig.Actor, correlation)
	} else {
		result, err = h.orchestrator.Progress(c.Request.Context(), id, sig, correlation)
	}
	if err != nil {
		h.writeError(c, "Failed to progress workflow", id, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RecordDecision handles POST /api/quotations/:id/approval
func (h *Handlers) RecordDecision(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.approvals.RecordApprovalDecision(c.Request.Context(), id, req.Status, utils.SanitizeString(req.Comments), req.Decider)
	if err != nil {
		h.writeError(c, "Failed to record decision", id, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// MarkEdited handles POST /api/quotations/:id/edited
func (h *Handlers) MarkEdited(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	var req EditedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	result, err := h.revisions.HandleEdited(c.Request.Context(), id, req.Editor)
	if err != nil {
		h.writeError(c, "Failed to handle edit", id, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ListDeadLetters handles GET /api/dead-letters
func (h *Handlers) ListDeadLetters(c *gin.Context) {
	var req ListDeadLettersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}
	if req.Limit < 0 || req.Limit > 500 {
		req.Limit = 0
	}

	items, err := h.deadLetters.List(c.Request.Context(), !req.All, req.Limit)
	if err != nil {
		h.logger.Error("Failed to list dead letters", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve dead letters",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// RetryDeadLetter handles POST /api/dead-letters/:id/retry
func (h *Handlers) RetryDeadLetter(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.badRequest(c, "invalid dead letter ID", err)
		return
	}

	dl, err := h.deadLetters.Retry(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to retry dead letter", id, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: dl})
}

func validateStart(req *StartWorkflowRequest) error {
	if req.DocumentID <= 0 {
		return errors.New("document_id must be positive")
	}
	if req.ClientContact != "" {
		if err := utils.ValidateEmail(req.ClientContact); err != nil {
			return err
		}
	}
	if req.Currency != "" {
		if err := utils.ValidateCurrency(req.Currency); err != nil {
			return err
		}
	}
	return utils.ValidateAmount(req.Amount)
}

func (h *Handlers) documentID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid document ID", "id", idStr, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid document ID",
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error("Bad request", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps workflow errors onto HTTP status codes
func (h *Handlers) writeError(c *gin.Context, msg string, id int64, err error) {
	h.logger.Error(msg, "id", id, "error", err)
	c.JSON(statusFor(err), Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrStaleState):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrInvalidSignal):
		return http.StatusBadRequest
	case errors.Is(err, domainwf.ErrTransientDispatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
