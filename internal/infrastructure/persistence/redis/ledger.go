package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
)

// Ledger is an ActionLedger backed by Redis. Each executed key is stored as
//
//	<prefix>ledger:<idempotency key> => JSON entry
//
// and claimed with SET NX, so concurrent executors sharing one Redis agree on a
// single recorder per key.
type Ledger struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewLedger creates a Redis ledger. ttl <= 0 keeps entries forever; a positive
// ttl bounds memory but an action whose entry expired executes again on replay.
func NewLedger(client *goredis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Ledger {
	if prefix == "" {
		prefix = "quotation:"
	}
	return &Ledger{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *Ledger) key(idempotencyKey string) string {
	return l.prefix + "ledger:" + idempotencyKey
}

// Exists implements port.ActionLedger
func (l *Ledger) Exists(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger exists: %w", err)
	}
	return n > 0, nil
}

// Record implements port.ActionLedger
func (l *Ledger) Record(ctx context.Context, entry *entity.LedgerEntry) (bool, error) {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal ledger entry: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key(entry.Key), data, l.ttl).Result()
	if err != nil {
		l.logger.Error("Failed to record action in redis",
			zap.String("action", entry.ActionName),
			zap.Int64("document_id", entry.DocumentID),
			zap.Error(err))
		return false, fmt.Errorf("redis ledger record: %w", err)
	}
	return ok, nil
}

// Get returns the recorded entry or nil
func (l *Ledger) Get(ctx context.Context, key string) (*entity.LedgerEntry, error) {
	data, err := l.client.Get(ctx, l.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis ledger get: %w", err)
	}

	var entry entity.LedgerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal ledger entry: %w", err)
	}
	return &entry, nil
}

// NewClient opens a Redis client and verifies the connection
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

var _ port.ActionLedger = (*Ledger)(nil)
