package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrEmailNotVerified = errors.New("email not verified")
)

const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository { return &Repository{db: db} }

type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	IsAdmin       bool      `json:"is_admin"`
	CreatedAt     time.Time `json:"created_at"`
}

const userColumns = `id, email, password_hash, COALESCE(display_name,''), email_verified, is_admin, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.EmailVerified, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

type NewUser struct {
	Email         string
	PasswordHash  string
	DisplayName   string
	EmailVerified bool
	// ForceAdmin grants admin regardless of how many users exist.
	ForceAdmin bool
}

// CreateUser inserts a new user. The first user ever created becomes admin.
func (r *Repository) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var cnt int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&cnt); err != nil {
		return User{}, err
	}
	isAdmin := nu.ForceAdmin || cnt == 0
	row := tx.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, display_name, email_verified, is_admin) VALUES (?, ?, ?, ?, ?) RETURNING `+userColumns,
		nu.Email, nu.PasswordHash, nu.DisplayName, nu.EmailVerified, isAdmin,
	)
	u, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// NewToken returns a cryptographically secure random token (hex-64)
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (r *Repository) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (Session, error) {
	tok, err := NewToken()
	if err != nil {
		return Session{}, err
	}
	s := Session{Token: tok, UserID: userID, ExpiresAt: time.Now().Add(ttl).UTC()}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		s.Token, s.UserID, s.ExpiresAt,
	); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (r *Repository) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// GetUserBySession resolves a live session. Expired sessions are removed on sight.
func (r *Repository) GetUserBySession(ctx context.Context, token string) (User, error) {
	var exp time.Time
	var uid int64
	err := r.db.QueryRowContext(ctx, `SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).Scan(&uid, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if !time.Now().Before(exp) {
		_ = r.DeleteSession(ctx, token)
		return User{}, ErrNotFound
	}
	return r.GetUserByID(ctx, uid)
}

// IssueToken stores a one-time token for the given purpose, replacing any earlier
// token of the same purpose for that user.
func (r *Repository) IssueToken(ctx context.Context, userID int64, purpose string, ttl time.Duration) (string, error) {
	tok, err := NewToken()
	if err != nil {
		return "", err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = ? AND purpose = ?`, userID, purpose); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth_tokens (token, user_id, purpose, expires_at) VALUES (?, ?, ?, ?)`,
		tok, userID, purpose, time.Now().Add(ttl).UTC(),
	); err != nil {
		return "", err
	}
	return tok, tx.Commit()
}

// ConsumeToken deletes the token and returns its user when it matches purpose and
// has not expired.
func (r *Repository) ConsumeToken(ctx context.Context, token, purpose string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var uid int64
	var exp time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM auth_tokens WHERE token = ? AND purpose = ?`, token, purpose,
	).Scan(&uid, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE token = ?`, token); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if !time.Now().Before(exp) {
		return 0, ErrInvalidToken
	}
	return uid, nil
}

func (r *Repository) MarkVerified(ctx context.Context, userID int64) error {
	return r.exec1(ctx, `UPDATE users SET email_verified = 1 WHERE id = ?`, userID)
}

// Admin utilities
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) SetPasswordHash(ctx context.Context, userID int64, newHash string) error {
	return r.exec1(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, newHash, userID)
}

func (r *Repository) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	return r.exec1(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, isAdmin, userID)
}

func (r *Repository) SetDisplayName(ctx context.Context, userID int64, name string) error {
	return r.exec1(ctx, `UPDATE users SET display_name = ? WHERE id = ?`, name, userID)
}

// DeleteUser removes the user; sessions, tokens and preferences cascade.
func (r *Repository) DeleteUser(ctx context.Context, userID int64) error {
	return r.exec1(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

func (r *Repository) CountOtherAdmins(ctx context.Context, excludeID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE is_admin = 1 AND id != ?`, excludeID).Scan(&n)
	return n, err
}

// exec1 runs a statement that must touch exactly one user row.
func (r *Repository) exec1(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
