package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"quiz-session-service/internal/domain"
)

type pointTransactionRow struct {
	bun.BaseModel `bun:"table:point_transactions,alias:pt"`

	ID             string    `bun:"id,pk"`
	Seq            int64     `bun:"seq,scanonly"`
	SessionID      string    `bun:"session_id,nullzero"`
	ParticipantID  string    `bun:"participant_id,notnull"`
	Amount         int       `bun:"amount,notnull"`
	Kind           string    `bun:"kind,notnull"`
	IdempotencyKey string    `bun:"idempotency_key,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func toRow(tx domain.PointTransaction) *pointTransactionRow {
	return &pointTransactionRow{
		ID:             tx.ID,
		SessionID:      tx.SessionID,
		ParticipantID:  tx.ParticipantID,
		Amount:         tx.Amount,
		Kind:           string(tx.Kind),
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      tx.CreatedAt.UTC().Truncate(time.Microsecond),
	}
}

func (r pointTransactionRow) transaction() domain.PointTransaction {
	return domain.PointTransaction{
		ID:             r.ID,
		SessionID:      r.SessionID,
		ParticipantID:  r.ParticipantID,
		Amount:         r.Amount,
		Kind:           domain.TransactionKind(r.Kind),
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
}

// TransactionStore is the point log in the point_transactions table. The unique
// idempotency_key column makes rewards exactly-once; spends serialize per participant
// on a transaction-scoped advisory lock.
type TransactionStore struct {
	db *bun.DB
}

func NewTransactionStore(db *bun.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) InsertReward(ctx context.Context, tx domain.PointTransaction) (domain.PointTransaction, bool, error) {
	row := toRow(tx)
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.PointTransaction{}, false, fmt.Errorf("insert reward: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return row.transaction(), true, nil
	}
	existing, err := s.byKey(ctx, s.db, tx.IdempotencyKey)
	if err != nil {
		return domain.PointTransaction{}, false, err
	}
	return existing, false, nil
}

func (s *TransactionStore) AppendUse(ctx context.Context, tx domain.PointTransaction) (domain.PointTransaction, error) {
	var out domain.PointTransaction
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, dbtx bun.Tx) error {
		if _, err := dbtx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", tx.ParticipantID); err != nil {
			return fmt.Errorf("lock participant: %w", err)
		}
		existing, err := s.byKey(ctx, dbtx, tx.IdempotencyKey)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		balance, err := s.balance(ctx, dbtx, tx.ParticipantID)
		if err != nil {
			return err
		}
		if balance < tx.Amount {
			return domain.ErrInsufficientBalance
		}
		row := toRow(tx)
		if _, err := dbtx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert use: %w", err)
		}
		out = row.transaction()
		return nil
	})
	if err != nil {
		return domain.PointTransaction{}, err
	}
	return out, nil
}

func (s *TransactionStore) Balance(ctx context.Context, participantID string) (int, error) {
	return s.balance(ctx, s.db, participantID)
}

// History returns matching transactions newest first, paged by q.
func (s *TransactionStore) History(ctx context.Context, participantID string, q domain.PointHistoryQuery) ([]domain.PointTransaction, error) {
	var rows []pointTransactionRow
	query := s.db.NewSelect().
		Model(&rows).
		Where("participant_id = ?", participantID).
		OrderExpr("created_at DESC, seq DESC").
		Limit(q.Size).
		Offset(q.Offset())
	if q.Kind != nil {
		query = query.Where("kind = ?", string(*q.Kind))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list point history: %w", err)
	}
	out := make([]domain.PointTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.transaction())
	}
	return out, nil
}

func (s *TransactionStore) balance(ctx context.Context, db bun.IDB, participantID string) (int, error) {
	var balance int
	err := db.NewSelect().
		Model((*pointTransactionRow)(nil)).
		ColumnExpr("COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE -amount END), 0)", string(domain.KindReward)).
		Where("participant_id = ?", participantID).
		Scan(ctx, &balance)
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return balance, nil
}

func (s *TransactionStore) byKey(ctx context.Context, db bun.IDB, key string) (domain.PointTransaction, error) {
	var row pointTransactionRow
	err := db.NewSelect().Model(&row).Where("idempotency_key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PointTransaction{}, err
	}
	if err != nil {
		return domain.PointTransaction{}, fmt.Errorf("load transaction %s: %w", key, err)
	}
	return row.transaction(), nil
}
