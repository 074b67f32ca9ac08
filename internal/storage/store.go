// Package storage persists portfolio snapshots and the account journal
package storage

import (
	"context"
	"errors"
	"time"

	"risk_calculator/internal/trading/portfolio"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrCorruptSnapshot is returned when a stored snapshot fails its checksum
var ErrCorruptSnapshot = errors.New("snapshot checksum mismatch")

// JournalKind names an account mutation
type JournalKind string

const (
	KindOpen     JournalKind = "OPEN"
	KindClose    JournalKind = "CLOSE"
	KindDeposit  JournalKind = "DEPOSIT"
	KindWithdraw JournalKind = "WITHDRAW"
	KindReset    JournalKind = "RESET"
)

// JournalEntry records one account mutation
type JournalEntry struct {
	ID           string          `json:"id"`
	At           time.Time       `json:"at"`
	Kind         JournalKind     `json:"kind"`
	PositionID   int64           `json:"position_id,omitempty"`
	Symbol       string          `json:"symbol,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Note         string          `json:"note,omitempty"`
}

// NewJournalEntry stamps an entry with a fresh id and the current time
func NewJournalEntry(kind JournalKind, amount, balanceAfter decimal.Decimal) JournalEntry {
	return JournalEntry{
		ID:           uuid.NewString(),
		At:           time.Now().UTC(),
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
	}
}

// Store persists the latest snapshot and an append-only journal
type Store interface {
	// LoadSnapshot returns nil without error when nothing has been saved
	LoadSnapshot(ctx context.Context) (*portfolio.Snapshot, error)
	// Commit saves the snapshot and appends entries atomically
	Commit(ctx context.Context, snapshot portfolio.Snapshot, entries ...JournalEntry) error
	// Journal returns the most recent limit entries, oldest first; limit <= 0 returns all
	Journal(ctx context.Context, limit int) ([]JournalEntry, error)
	Close() error
}
