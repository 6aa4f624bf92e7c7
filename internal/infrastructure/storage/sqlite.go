package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/deribit_gateway/internal/domain"
)

var ErrNotFound = errors.New("journal entry not found")

// SQLiteStore keeps the order journal: one row per order-mutating call,
// written before the call is sent and updated once its outcome is known.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS order_journal (
			label TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			instrument_name TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL DEFAULT '',
			order_type TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL DEFAULT '',
			price TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_journal_updated ON order_journal(updated_at);`,
		`CREATE INDEX IF NOT EXISTS idx_order_journal_state ON order_journal(state);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordAttempt stores entry as pending. Reusing a label restarts its row.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, entry *domain.JournalEntry) error {
	now := s.now()
	entry.State = domain.JournalPending
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `INSERT INTO order_journal (label, operation, instrument_name, side, order_type, amount, price, order_id, state, error_kind, error_message, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)
			  ON CONFLICT(label) DO UPDATE SET
			  operation=excluded.operation,
			  instrument_name=excluded.instrument_name,
			  side=excluded.side,
			  order_type=excluded.order_type,
			  amount=excluded.amount,
			  price=excluded.price,
			  order_id=excluded.order_id,
			  state=excluded.state,
			  error_kind='',
			  error_message='',
			  updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		entry.Label, entry.Operation, entry.InstrumentName, string(entry.Side), string(entry.OrderType),
		entry.Amount, entry.Price, entry.OrderID, string(entry.State), entry.CreatedAt, entry.UpdatedAt)
	return err
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, label string, state domain.JournalState, orderID, errKind, errMessage string) error {
	query := `UPDATE order_journal SET state = ?, order_id = CASE WHEN ? = '' THEN order_id ELSE ? END,
			  error_kind = ?, error_message = ?, updated_at = ? WHERE label = ?`
	res, err := s.db.ExecContext(ctx, query, string(state), orderID, orderID, errKind, errMessage, s.now(), label)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("label %s: %w", label, ErrNotFound)
	}
	return nil
}

const selectJournal = `SELECT label, operation, instrument_name, side, order_type, amount, price, order_id, state, error_kind, error_message, created_at, updated_at FROM order_journal`

func (s *SQLiteStore) GetByLabel(ctx context.Context, label string) (*domain.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, selectJournal+` WHERE label = ?`, label)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("label %s: %w", label, ErrNotFound)
	}
	return e, err
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectJournal+` ORDER BY updated_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	var side, orderType, state string
	err := row.Scan(&e.Label, &e.Operation, &e.InstrumentName, &side, &orderType, &e.Amount, &e.Price,
		&e.OrderID, &state, &e.ErrorKind, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Side = domain.Side(side)
	e.OrderType = domain.OrderType(orderType)
	e.State = domain.JournalState(state)
	return &e, nil
}
