package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const functionalityColumns = `seq, id, text, justification, proposer_id, proposer_username, priority, created_at, updated_at`

const changeLogColumns = `seq, id, functionality_id, functionality_text, user_id, username, change_type, from_priority, to_priority, justification, occurred_at`

// SQLStore persists the board in Postgres or SQLite. Queries are written
// with ? placeholders and rebound for the connected driver.
type SQLStore struct {
	db      *sqlx.DB
	dialect string
	now     func() time.Time
}

func NewSQLStore(db *sqlx.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Dialect() string { return s.dialect }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) CreateUser(ctx context.Context, user User) (User, error) {
	user.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`),
		user.ID, user.Username, user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT id, username, created_at FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListFunctionalities returns every card in creation order.
func (s *SQLStore) ListFunctionalities(ctx context.Context) ([]Functionality, error) {
	items := []Functionality{}
	err := s.db.SelectContext(ctx, &items, `SELECT `+functionalityColumns+` FROM functionalities ORDER BY created_at ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list functionalities: %w", err)
	}
	return items, nil
}

func (s *SQLStore) GetFunctionality(ctx context.Context, id string) (Functionality, error) {
	var item Functionality
	err := s.db.GetContext(ctx, &item, s.db.Rebind(`SELECT `+functionalityColumns+` FROM functionalities WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Functionality{}, ErrNotFound
	}
	if err != nil {
		return Functionality{}, fmt.Errorf("get functionality: %w", err)
	}
	return item, nil
}

// ListChangeLog returns the newest entries first. limit <= 0 means all.
func (s *SQLStore) ListChangeLog(ctx context.Context, limit int) ([]ChangeLogEntry, error) {
	query := `SELECT ` + changeLogColumns + ` FROM change_log ORDER BY occurred_at DESC, seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	entries := []ChangeLogEntry{}
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list change log: %w", err)
	}
	return entries, nil
}

// ListChangeLogFor returns the history of one card, newest first.
func (s *SQLStore) ListChangeLogFor(ctx context.Context, functionalityID string) ([]ChangeLogEntry, error) {
	entries := []ChangeLogEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(`
		SELECT `+changeLogColumns+` FROM change_log
		WHERE functionality_id = ?
		ORDER BY occurred_at DESC, seq DESC
	`), functionalityID)
	if err != nil {
		return nil, fmt.Errorf("list change log for %s: %w", functionalityID, err)
	}
	return entries, nil
}

// SearchText is the substring search used when no search engine is available.
func (s *SQLStore) SearchText(ctx context.Context, text string, limit int) ([]Functionality, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return []Functionality{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(needle) + "%"
	items := []Functionality{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(`
		SELECT `+functionalityColumns+` FROM functionalities
		WHERE LOWER(text) LIKE ? ESCAPE '\' OR LOWER(justification) LIKE ? ESCAPE '\'
		ORDER BY created_at ASC, seq ASC
		LIMIT ?
	`), pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search functionalities: %w", err)
	}
	return items, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
