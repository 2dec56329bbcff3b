package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// minSecretLen is the provider-side floor. The provisioning layer
// enforces a stricter policy before calling in; this guard only mirrors
// what a hosted provider would reject outright.
const minSecretLen = 6

// Directory is a PostgreSQL-backed Provider for self-contained
// deployments that do not use a hosted identity service.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// EnsureSchema creates the accounts table if absent.
func (d *Directory) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS identity_accounts (
		subject_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		claims JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("identity: ensure schema: %w", err)
	}
	return nil
}

// VerifyPassword checks the email/secret pair against the stored hash.
func (d *Directory) VerifyPassword(ctx context.Context, email, secret string) (string, error) {
	var subjectID, hash string
	err := d.pool.QueryRow(ctx,
		`SELECT subject_id, password_hash FROM identity_accounts WHERE email = $1`,
		normalizeEmail(email)).Scan(&subjectID, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return "", ErrInvalidCredentials
	}
	return subjectID, nil
}

// CreateUser provisions a new credential pair.
func (d *Directory) CreateUser(ctx context.Context, email, secret string) (string, error) {
	if len(secret) < minSecretLen {
		return "", ErrWeakSecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	subjectID := uuid.NewString()
	_, err = d.pool.Exec(ctx,
		`INSERT INTO identity_accounts (subject_id, email, password_hash) VALUES ($1, $2, $3)`,
		subjectID, normalizeEmail(email), string(hash))
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateEmail
		}
		return "", err
	}
	return subjectID, nil
}

// DeleteUser removes an account by subject id.
func (d *Directory) DeleteUser(ctx context.Context, subjectID string) error {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM identity_accounts WHERE subject_id = $1`, subjectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetClaims replaces the custom claims stored for an account.
func (d *Directory) SetClaims(ctx context.Context, subjectID string, claims Claims) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx,
		`UPDATE identity_accounts SET claims = $2 WHERE subject_id = $1`, subjectID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var legacyErr *pgconnv1.PgError
	if errors.As(err, &legacyErr) {
		return legacyErr.Code == "23505"
	}
	return false
}

var _ Provider = (*Directory)(nil)
