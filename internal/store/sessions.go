package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Refresh sessions and revoked access tokens live in SQL when Redis is not
// configured.

func (s *SQLStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at) VALUES (?, ?, ?)
	`), tokenHash, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var row struct {
		User
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT u.id, u.username, u.created_at, r.expires_at
		FROM refresh_sessions r
		JOIN users u ON u.id = r.user_id
		WHERE r.token_hash = ?
	`), tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	if !row.ExpiresAt.After(s.now()) {
		return User{}, ErrNotFound
	}
	return row.User, nil
}

func (s *SQLStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM refresh_sessions WHERE token_hash = ?`), tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO revoked_access_tokens (jti, expires_at) VALUES (?, ?)
		ON CONFLICT (jti) DO NOTHING
	`), jti, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *SQLStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(1) FROM revoked_access_tokens WHERE jti = ?`), jti); err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired removes refresh sessions and revocations past their expiry.
func (s *SQLStore) PurgeExpired(ctx context.Context) error {
	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM refresh_sessions WHERE expires_at <= ?`), now); err != nil {
		return fmt.Errorf("purge refresh sessions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM revoked_access_tokens WHERE expires_at <= ?`), now); err != nil {
		return fmt.Errorf("purge revoked tokens: %w", err)
	}
	return nil
}
