package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-session-service/internal/domain"
)

// PasswordStore keeps secondary password hashes in the secondary_passwords table.
type PasswordStore struct {
	pool *pgxpool.Pool
}

func NewPasswordStore(pool *pgxpool.Pool) *PasswordStore {
	return &PasswordStore{pool: pool}
}

func (s *PasswordStore) SetPasswordHash(ctx context.Context, participantID string, hash []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO secondary_passwords (participant_id, hash) VALUES ($1, $2)
		 ON CONFLICT (participant_id) DO UPDATE SET hash = EXCLUDED.hash, updated_at = now()`,
		participantID, hash)
	if err != nil {
		return fmt.Errorf("save secondary password: %w", err)
	}
	return nil
}

func (s *PasswordStore) PasswordHash(ctx context.Context, participantID string) ([]byte, error) {
	var hash []byte
	err := s.pool.QueryRow(ctx,
		`SELECT hash FROM secondary_passwords WHERE participant_id=$1`, participantID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoPassword
	}
	if err != nil {
		return nil, fmt.Errorf("load secondary password: %w", err)
	}
	return hash, nil
}
