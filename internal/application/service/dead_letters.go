package service

import (
	"context"
	"fmt"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
)

const defaultDeadLetterLimit = 50

// Replayer re-runs a dead-lettered action
type Replayer interface {
	Replay(ctx context.Context, deadLetterID int64) error
}

// DeadLetterAdmin lists and retries actions that exhausted their retries
type DeadLetterAdmin interface {
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]*entity.DeadLetter, error)
	Retry(ctx context.Context, id int64) (*entity.DeadLetter, error)
}

type deadLetterAdminImpl struct {
	repo     port.DeadLetterRepository
	replayer Replayer
	logger   Logger
}

// NewDeadLetterAdmin creates a new dead letter admin service
func NewDeadLetterAdmin(repo port.DeadLetterRepository, replayer Replayer, logger Logger) DeadLetterAdmin {
	return &deadLetterAdminImpl{
		repo:     repo,
		replayer: replayer,
		logger:   logger,
	}
}

// List implements DeadLetterAdmin
func (a *deadLetterAdminImpl) List(ctx context.Context, unresolvedOnly bool, limit int) ([]*entity.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	items, err := a.repo.List(ctx, unresolvedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return items, nil
}

// Retry replays the action and returns the dead letter as it stands afterwards
func (a *deadLetterAdminImpl) Retry(ctx context.Context, id int64) (*entity.DeadLetter, error) {
	if err := a.replayer.Replay(ctx, id); err != nil {
		a.logger.Error("Dead letter retry failed", "dead_letter_id", id, "error", err)
		return nil, err
	}
	dl, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload dead letter: %w", err)
	}
	a.logger.Info("Dead letter retried", "dead_letter_id", id)
	return dl, nil
}
