package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

// LedgerRepository implements port.ActionLedger on the action_ledger table
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sql.DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

// Exists implements port.ActionLedger
func (r *LedgerRepository) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM action_ledger WHERE idempotency_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return n > 0, nil
}

// Record implements port.ActionLedger
func (r *LedgerRepository) Record(ctx context.Context, entry *entity.LedgerEntry) (bool, error) {
	entry.ExecutedAt = utc(entry.ExecutedAt)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT OR IGNORE INTO action_ledger (idempotency_key, document_id, action_name, executed_at)
		VALUES (?, ?, ?, ?)
	`, entry.Key, entry.DocumentID, entry.ActionName, entry.ExecutedAt)
	if err != nil {
		r.logger.Error("Failed to record action", zap.String("action", entry.ActionName), zap.Error(err))
		return false, fmt.Errorf("failed to record action: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

var _ port.ActionLedger = (*LedgerRepository)(nil)
