// Package store is the PostgreSQL persistence layer for users and journal
// entries. A Store is built once in main and handed to the handlers.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"parentseed/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DeleteRetryDelay is the pause before the single retry of DeleteAccount.
var DeleteRetryDelay = 200 * time.Millisecond

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// entry_date is read back as text so the day is never shifted by a driver
// time zone, and emotions go through text so pq.StringArray can parse them.
const entryColumns = `id, user_id, to_char(entry_date, 'YYYY-MM-DD') AS entry_date, emotions::text AS emotions, content, ai_advice, created_at`

const userColumns = `id, email, email_blind_index, password_hash, created_at`

// CreateUser inserts u, whose Email is expected to be encrypted already and
// EmailBlindIndex filled. ID and CreatedAt are assigned.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO users (email, email_blind_index, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`,
		u.Email, u.EmailBlindIndex, u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByEmailIndex looks a user up by the blind index of their email.
func (s *Store) UserByEmailIndex(ctx context.Context, index string) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email_blind_index=$1`, index)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) EmailIndexExists(ctx context.Context, index string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE email_blind_index=$1)`, index); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// CreateEntry inserts e, assigning its ID and CreatedAt. It returns
// ErrNotFound when the owning user no longer exists.
func (s *Store) CreateEntry(ctx context.Context, e *models.JournalEntry) error {
	emotions, err := e.Emotions.Value()
	if err != nil {
		return fmt.Errorf("encode emotions: %w", err)
	}
	e.ID = uuid.New()
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO journal_entries (id, user_id, entry_date, emotions, content, ai_advice)
		 VALUES ($1, $2, $3::date, $4::text::text[], $5, $6)
		 RETURNING created_at`,
		e.ID, e.UserID, e.Date, emotions, e.Content, e.AIAdvice).Scan(&e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// ListFilter narrows ListEntries. Empty dates are unbounded; Limit <= 0 means
// no limit.
type ListFilter struct {
	From  string
	To    string
	Limit int
}

// ListEntries returns the user's entries newest first.
func (s *Store) ListEntries(ctx context.Context, userID uuid.UUID, f ListFilter) ([]models.JournalEntry, error) {
	where := []string{"user_id=$1"}
	args := []any{userID}
	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("entry_date >= $%d::date", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("entry_date <= $%d::date", len(args)))
	}
	query := "SELECT " + entryColumns + " FROM journal_entries WHERE " + strings.Join(where, " AND ") +
		" ORDER BY entry_date DESC, created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	out := []models.JournalEntry{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteEntry(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes the user and every entry they own in one transaction.
// Deleting an account that no longer exists succeeds. A transient failure is
// retried once.
func (s *Store) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	err := s.deleteAccountTx(ctx, userID)
	if err == nil || !IsTransient(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(DeleteRetryDelay):
	}
	return s.deleteAccountTx(ctx, userID)
}

func (s *Store) deleteAccountTx(ctx context.Context, userID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete account: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM journal_entries WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete account entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("delete account user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete account: %w", err)
	}
	return nil
}

// IsTransient reports whether err is worth one more attempt: lost
// connections, serialization failures and deadlocks.
func IsTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" || strings.HasPrefix(pgErr.Code, "08")
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
