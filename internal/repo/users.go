package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"taskline/internal/domain"
)

// HashResetToken returns a stable SHA-256 hex digest for a reset token.
// Only the digest is stored; the raw token travels to the user once.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func (r *Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,password_hash,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	return err
}

func (r *Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM users WHERE id=?`, id))
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM users WHERE email=?`, strings.ToLower(email)))
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r *Repo) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, passwordHash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) InsertResetToken(ctx context.Context, t domain.ResetToken) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reset_tokens(token_hash,user_id,expires_at,used) VALUES (?,?,?,0)`,
		t.TokenHash, t.UserID, t.ExpiresAt)
	return err
}

func (r *Repo) GetResetToken(ctx context.Context, tokenHash string) (domain.ResetToken, error) {
	var t domain.ResetToken
	var used int
	err := r.DB.QueryRowContext(ctx, `SELECT token_hash,user_id,expires_at,used FROM reset_tokens WHERE token_hash=?`, tokenHash).
		Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &used)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Used = used != 0
	return t, nil
}

func (r *Repo) MarkResetTokenUsed(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reset_tokens SET used=1 WHERE token_hash=? AND used=0`, tokenHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneResetTokens deletes tokens that expired before the cutoff.
func (r *Repo) PruneResetTokens(ctx context.Context, cutoff time.Time) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM reset_tokens WHERE expires_at < ?`, cutoff.UTC().Format(time.RFC3339))
	return err
}
