package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventProcessor consumes one plain approval event payload
type EventProcessor interface {
	ProcessEvent(ctx context.Context, payload []byte) error
}

// Handler receives Lark approval callbacks over HTTP
type Handler struct {
	verifier  *Verifier
	processor EventProcessor
	logger    *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(verifier *Verifier, processor EventProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		verifier:  verifier,
		processor: processor,
		logger:    logger,
	}
}

// Handle processes one callback. Processing errors answer 500 so Lark
// redelivers; duplicate deliveries are absorbed by the approval gate.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if !h.verifier.VerifySignature(
		c.GetHeader("X-Lark-Request-Timestamp"),
		c.GetHeader("X-Lark-Request-Nonce"),
		c.GetHeader("X-Lark-Signature"),
		body,
	) {
		h.logger.Warn("Invalid webhook signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	payload, err := h.verifier.Unwrap(body)
	if err != nil {
		h.logger.Error("Failed to unwrap callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decode callback"})
		return
	}

	challenge, isChallenge, err := h.verifier.Challenge(payload)
	switch {
	case errors.Is(err, ErrInvalidToken):
		h.logger.Warn("Challenge verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Challenge verification failed"})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse callback"})
		return
	case isChallenge:
		h.logger.Info("Challenge verified successfully")
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	if err := h.processor.ProcessEvent(c.Request.Context(), payload); err != nil {
		h.logger.Error("Failed to process approval callback", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event received"})
}
