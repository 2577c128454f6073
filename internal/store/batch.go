package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"moscowboard/api/internal/board"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrStalePriority = errors.New("priority changed since it was read")
	ErrEmptyBatch    = errors.New("empty batch")
)

type opKind int

const (
	opCreateFunctionality opKind = iota + 1
	opMovePriority
	opAppendLog
)

type batchOp struct {
	kind          opKind
	functionality Functionality
	entry         ChangeLogEntry
	id            string
	from          board.Priority
	to            board.Priority
}

// Batch is an ordered set of writes committed atomically. Every op in a
// batch shares one server timestamp, assigned at commit.
type Batch struct {
	ops         []batchOp
	committedAt time.Time
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) CreateFunctionality(f Functionality) *Batch {
	b.ops = append(b.ops, batchOp{kind: opCreateFunctionality, functionality: f})
	return b
}

// MovePriority only applies when the row still holds from.
func (b *Batch) MovePriority(id string, from, to board.Priority) *Batch {
	b.ops = append(b.ops, batchOp{kind: opMovePriority, id: id, from: from, to: to})
	return b
}

func (b *Batch) AppendLog(entry ChangeLogEntry) *Batch {
	b.ops = append(b.ops, batchOp{kind: opAppendLog, entry: entry})
	return b
}

func (b *Batch) Len() int { return len(b.ops) }

// CommittedAt is zero until the batch has been committed.
func (b *Batch) CommittedAt() time.Time { return b.committedAt }

// Functionalities returns the created rows, stamped once committed.
func (b *Batch) Functionalities() []Functionality {
	var out []Functionality
	for _, op := range b.ops {
		if op.kind == opCreateFunctionality {
			out = append(out, op.functionality)
		}
	}
	return out
}

// Entries returns the appended log entries, stamped once committed.
func (b *Batch) Entries() []ChangeLogEntry {
	var out []ChangeLogEntry
	for _, op := range b.ops {
		if op.kind == opAppendLog {
			out = append(out, op.entry)
		}
	}
	return out
}

// Move is a pending priority change held by a batch.
type Move struct {
	ID   string
	From board.Priority
	To   board.Priority
}

func (b *Batch) Moves() []Move {
	var out []Move
	for _, op := range b.ops {
		if op.kind == opMovePriority {
			out = append(out, Move{ID: op.id, From: op.from, To: op.to})
		}
	}
	return out
}

// Commit applies every op of b in one transaction. Any failure rolls the
// whole batch back.
func (s *SQLStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || len(b.ops) == 0 {
		return ErrEmptyBatch
	}
	now := s.now().UTC().Truncate(time.Microsecond)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for i := range b.ops {
		if err := applyOp(ctx, tx, &b.ops[i], now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	b.Stamp(now)
	return nil
}

// Stamp records a successful commit at t on every op. Store implementations
// call it once the transaction is durable.
func (b *Batch) Stamp(t time.Time) {
	b.committedAt = t
	for i := range b.ops {
		switch b.ops[i].kind {
		case opCreateFunctionality:
			b.ops[i].functionality.CreatedAt = t
			b.ops[i].functionality.UpdatedAt = t
		case opAppendLog:
			b.ops[i].entry.Timestamp = t
		}
	}
}

func applyOp(ctx context.Context, tx *sqlx.Tx, op *batchOp, now time.Time) error {
	switch op.kind {
	case opCreateFunctionality:
		f := op.functionality
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO functionalities (id, text, justification, proposer_id, proposer_username, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), f.ID, f.Text, f.Justification, f.ProposerID, f.ProposerUsername, string(f.Priority), now, now)
		if err != nil {
			return fmt.Errorf("insert functionality %s: %w", f.ID, err)
		}
		return nil

	case opMovePriority:
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE functionalities SET priority = ?, updated_at = ?
			WHERE id = ? AND priority = ?
		`), string(op.to), now, op.id, string(op.from))
		if err != nil {
			return fmt.Errorf("update priority %s: %w", op.id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update priority %s: %w", op.id, err)
		}
		if affected == 1 {
			return nil
		}
		var current string
		err = tx.GetContext(ctx, &current, tx.Rebind(`SELECT priority FROM functionalities WHERE id = ?`), op.id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("functionality %s: %w", op.id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read priority %s: %w", op.id, err)
		}
		return fmt.Errorf("functionality %s is %s, expected %s: %w", op.id, current, op.from, ErrStalePriority)

	case opAppendLog:
		e := op.entry
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO change_log (id, functionality_id, functionality_text, user_id, username, change_type, from_priority, to_priority, justification, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), e.ID, e.FunctionalityID, e.FunctionalityText, e.UserID, e.Username, string(e.ChangeType),
			string(e.FromPriority), string(e.ToPriority), e.Justification, now)
		if err != nil {
			return fmt.Errorf("append change log %s: %w", e.ID, err)
		}
		return nil
	}
	return fmt.Errorf("unknown batch op %d", op.kind)
}
