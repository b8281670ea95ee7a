package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/common"
)

// Credential is the single cached login the device keeps for offline
// validation. The vault owns the hash format; the store only persists it.
type Credential struct {
	Email        string
	PasswordHash string
	Profile      []byte
	StoredAt     time.Time
}

// PutCredential stores the cached login, replacing any previous one. The
// table holds at most one row.
func (s *Store) PutCredential(ctx context.Context, c Credential) error {
	return s.write(ctx, "put-credential", func(ctx context.Context) error {
		query := `INSERT INTO credentials (id, email, password_hash, profile, stored_at)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				email = excluded.email,
				password_hash = excluded.password_hash,
				profile = excluded.profile,
				stored_at = excluded.stored_at`
		_, err := s.db.ExecContext(ctx, query, c.Email, c.PasswordHash, c.Profile, s.now())
		if err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}
		return nil
	})
}

// Credential returns the cached login, or ErrNotFound if none is stored.
func (s *Store) Credential(ctx context.Context) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT email, password_hash, profile, stored_at FROM credentials WHERE id = 1")

	var c Credential
	if err := row.Scan(&c.Email, &c.PasswordHash, &c.Profile, &c.StoredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential: %w", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	c.StoredAt = c.StoredAt.UTC()
	return &c, nil
}

// DeleteCredential removes the cached login. Deleting when none is stored is
// not an error.
func (s *Store) DeleteCredential(ctx context.Context) error {
	return s.write(ctx, "delete-credential", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = 1"); err != nil {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
		return nil
	})
}
