package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

// QuotationRepository implements port.QuotationRepository
type QuotationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQuotationRepository creates a new quotation repository
func NewQuotationRepository(db *sql.DB, logger *zap.Logger) *QuotationRepository {
	return &QuotationRepository{db: db, logger: logger}
}

// CreateIfAbsent implements port.QuotationRepository
func (r *QuotationRepository) CreateIfAbsent(ctx context.Context, q *entity.Quotation) (bool, error) {
	query := `
		INSERT OR IGNORE INTO quotations (
			id, client_ref, client_contact, amount, currency,
			business_unit, owner, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := utc(q.CreatedAt)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		q.ID, q.ClientRef, q.ClientContact, q.Amount, q.Currency,
		q.BusinessUnit, q.Owner, now, now,
	)
	if err != nil {
		r.logger.Error("Failed to create quotation", zap.Int64("id", q.ID), zap.Error(err))
		return false, fmt.Errorf("failed to create quotation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		q.CreatedAt, q.UpdatedAt = now, now
	}
	return n == 1, nil
}

// GetByID returns nil, nil when the quotation does not exist
func (r *QuotationRepository) GetByID(ctx context.Context, id int64) (*entity.Quotation, error) {
	query := `
		SELECT id, client_ref, client_contact, amount, currency,
			business_unit, owner, created_at, updated_at
		FROM quotations
		WHERE id = ?
	`

	var q entity.Quotation
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&q.ID, &q.ClientRef, &q.ClientContact, &q.Amount, &q.Currency,
		&q.BusinessUnit, &q.Owner, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get quotation", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get quotation: %w", err)
	}
	return &q, nil
}

var _ port.QuotationRepository = (*QuotationRepository)(nil)
