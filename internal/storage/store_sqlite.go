package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/pkg/retry"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT    NOT NULL,
	checksum   BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	at            INTEGER NOT NULL,
	kind          TEXT    NOT NULL,
	position_id   INTEGER NOT NULL DEFAULT 0,
	symbol        TEXT    NOT NULL DEFAULT '',
	amount        TEXT    NOT NULL,
	balance_after TEXT    NOT NULL,
	note          TEXT    NOT NULL DEFAULT ''
);`

// SQLiteStore implements Store on a single SQLite file
type SQLiteStore struct {
	db     *sql.DB
	policy retry.RetryPolicy
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, policy: retry.DefaultPolicy}, nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func (s *SQLiteStore) Commit(ctx context.Context, snapshot portfolio.Snapshot, entries ...JournalEntry) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Validate JSON (round-trip test)
	var check portfolio.Snapshot
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	checksum := sha256.Sum256(data)

	return retry.Do(ctx, s.policy, isBusy, func() error {
		return s.commitTx(ctx, data, checksum[:], entries)
	})
}

func (s *SQLiteStore) commitTx(ctx context.Context, data, checksum []byte, entries []JournalEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshot (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`,
		string(data), checksum, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	for _, e := range entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO journal (id, at, kind, position_id, symbol, amount, balance_after, note) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.At.UnixNano(), string(e.Kind), e.PositionID, e.Symbol, e.Amount.String(), e.BalanceAfter.String(), e.Note)
		if err != nil {
			return fmt.Errorf("failed to append journal entry %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*portfolio.Snapshot, error) {
	var (
		data           string
		storedChecksum []byte
	)
	err := retry.Do(ctx, s.policy, isBusy, func() error {
		return s.db.QueryRowContext(ctx, `SELECT data, checksum FROM snapshot WHERE id = 1`).Scan(&data, &storedChecksum)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if !bytes.Equal(storedChecksum, computed[:]) {
		return nil, ErrCorruptSnapshot
	}

	var snap portfolio.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	query := `SELECT id, at, kind, position_id, symbol, amount, balance_after, note FROM journal ORDER BY seq DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return retry.DoValue(ctx, s.policy, isBusy, func() ([]JournalEntry, error) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query journal: %w", err)
		}
		defer rows.Close()

		var out []JournalEntry
		for rows.Next() {
			var (
				e             JournalEntry
				at            int64
				kind          string
				amount, after string
			)
			if err := rows.Scan(&e.ID, &at, &kind, &e.PositionID, &e.Symbol, &amount, &after, &e.Note); err != nil {
				return nil, fmt.Errorf("failed to scan journal row: %w", err)
			}
			e.At = time.Unix(0, at).UTC()
			e.Kind = JournalKind(kind)
			if e.Amount, err = decimal.NewFromString(amount); err != nil {
				return nil, fmt.Errorf("journal %s amount: %w", e.ID, err)
			}
			if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
				return nil, fmt.Errorf("journal %s balance: %w", e.ID, err)
			}
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, nil
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
