package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is the login identity. Library membership hangs off it 1:1.
type User struct {
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	TokenVersion int
	CreatedAt    time.Time
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

const userColumns = `id, username, email, first_name, last_name, password_hash, token_version, created_at`

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repo) CreateUser(ctx context.Context, u User) error {
	return insertUser(ctx, r.DB, u)
}

// CreateUserTx inserts the user inside tx so callers can write dependent rows
// in the same commit.
func CreateUserTx(ctx context.Context, tx *sql.Tx, u User) error {
	return insertUser(ctx, tx, u)
}

func insertUser(ctx context.Context, ex execer, u User) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO users (id, username, email, first_name, last_name, password_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	return r.getOne(ctx, "get by email", `WHERE LOWER(email) = ?`, email)
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, "get by username", `WHERE username = ?`, strings.TrimSpace(username))
}

func (r *Repo) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, "get by id", `WHERE id = ?`, id)
}

func (r *Repo) getOne(ctx context.Context, op, where string, arg any) (*User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, arg)

	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.TokenVersion, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (r *Repo) GetTokenVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := r.DB.QueryRowContext(ctx, `SELECT token_version FROM users WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("get token version: user %s not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("get token version: %w", err)
	}
	return version, nil
}

// UpdatePassword stores the new hash and bumps token_version so every
// token issued before the change stops validating.
func (r *Repo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return r.bump(ctx, "update password", `password_hash = ?, `, passwordHash, id)
}

func (r *Repo) BumpTokenVersion(ctx context.Context, id string) error {
	return r.bump(ctx, "bump token version", ``, id)
}

func (r *Repo) bump(ctx context.Context, op, set string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET `+set+`token_version = token_version + 1
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: user not found", op)
	}
	return nil
}
