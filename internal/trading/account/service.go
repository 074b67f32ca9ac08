// Package account persists every portfolio mutation and records it in the journal
package account

import (
	"context"
	"fmt"
	"sync"

	"risk_calculator/internal/core"
	"risk_calculator/internal/risk/margin"
	"risk_calculator/internal/storage"
	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/internal/trading/position"
	"risk_calculator/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Service wraps a portfolio with durable state. A failed save rolls the
// in-memory portfolio back to its last committed snapshot.
type Service struct {
	mu        sync.Mutex
	portfolio *portfolio.Portfolio
	store     storage.Store
	logger    core.ILogger
}

// NewService restores the stored snapshot, or starts a fresh portfolio
// holding initialBalance when the store is empty.
func NewService(ctx context.Context, engine *margin.Engine, store storage.Store, initialBalance decimal.Decimal, logger core.ILogger) (*Service, error) {
	p, err := portfolio.New(initialBalance, engine, logger)
	if err != nil {
		return nil, err
	}

	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load account state: %w", err)
	}
	if snap != nil {
		if err := p.Restore(*snap); err != nil {
			return nil, fmt.Errorf("failed to restore account state: %w", err)
		}
	}

	s := &Service{
		portfolio: p,
		store:     store,
		logger:    logger.WithField("component", "account"),
	}
	if snap == nil {
		s.logger.Info("Starting new account", "balance", initialBalance.String())
	} else {
		s.logger.Debug("Account restored", "balance", p.Balance().String(), "open_positions", len(snap.Positions))
	}
	s.exportBalances()
	return s, nil
}

// Portfolio exposes the live portfolio for read-only use and simulation
func (s *Service) Portfolio() *portfolio.Portfolio {
	return s.portfolio
}

// Open opens a position and journals the margin it committed
func (s *Service) Open(ctx context.Context, req portfolio.OpenRequest) (*position.Position, error) {
	var opened *position.Position
	err := s.mutate(ctx, func() (storage.JournalEntry, error) {
		pos, err := s.portfolio.OpenPosition(req)
		if err != nil {
			return storage.JournalEntry{}, err
		}
		opened = pos
		entry := storage.NewJournalEntry(storage.KindOpen, pos.InitialMargin(), s.portfolio.Balance())
		entry.PositionID = pos.ID
		entry.Symbol = pos.Symbol
		entry.Note = fmt.Sprintf("%s %s %s x%s @ %s", pos.Side, pos.MarginMode, pos.Size, pos.Leverage, pos.EntryPrice)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.GetGlobalMetrics().RecordPositionOpened(ctx, opened.Symbol, opened.MarginMode.String())
	return opened, nil
}

// Close realizes a position at exitPrice
func (s *Service) Close(ctx context.Context, id int64, exitPrice decimal.Decimal) (decimal.Decimal, error) {
	var (
		pnl    decimal.Decimal
		closed *position.Position
	)
	err := s.mutate(ctx, func() (storage.JournalEntry, error) {
		var err error
		if closed, err = s.portfolio.Position(id); err != nil {
			return storage.JournalEntry{}, err
		}
		pnl, err = s.portfolio.ClosePosition(id, exitPrice)
		if err != nil {
			return storage.JournalEntry{}, err
		}
		entry := storage.NewJournalEntry(storage.KindClose, pnl, s.portfolio.Balance())
		entry.PositionID = id
		entry.Symbol = closed.Symbol
		entry.Note = "exit @ " + exitPrice.String()
		return entry, nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	m := telemetry.GetGlobalMetrics()
	pnlFloat, _ := pnl.Float64()
	m.RecordRealizedPnL(ctx, closed.Symbol, pnlFloat)
	m.RecordPositionClosed(ctx, closed.Symbol, closed.MarginMode.String())
	return pnl, nil
}

// Deposit adds funds
func (s *Service) Deposit(ctx context.Context, amount decimal.Decimal) error {
	return s.mutate(ctx, func() (storage.JournalEntry, error) {
		if err := s.portfolio.Deposit(amount); err != nil {
			return storage.JournalEntry{}, err
		}
		return storage.NewJournalEntry(storage.KindDeposit, amount, s.portfolio.Balance()), nil
	})
}

// Withdraw removes uncommitted funds
func (s *Service) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	return s.mutate(ctx, func() (storage.JournalEntry, error) {
		if err := s.portfolio.Withdraw(amount); err != nil {
			return storage.JournalEntry{}, err
		}
		return storage.NewJournalEntry(storage.KindWithdraw, amount.Neg(), s.portfolio.Balance()), nil
	})
}

// Reset sets a new starting balance
func (s *Service) Reset(ctx context.Context, amount decimal.Decimal) error {
	return s.mutate(ctx, func() (storage.JournalEntry, error) {
		if err := s.portfolio.ResetBalance(amount); err != nil {
			return storage.JournalEntry{}, err
		}
		return storage.NewJournalEntry(storage.KindReset, amount, s.portfolio.Balance()), nil
	})
}

// Save persists the current state without a journal entry, e.g. after marks change
func (s *Service) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Commit(ctx, s.portfolio.Snapshot()); err != nil {
		return fmt.Errorf("failed to save account state: %w", err)
	}
	return nil
}

// Journal returns the latest limit entries, oldest first
func (s *Service) Journal(ctx context.Context, limit int) ([]storage.JournalEntry, error) {
	return s.store.Journal(ctx, limit)
}

// Ping checks the store is readable
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.store.Journal(ctx, 1)
	return err
}

func (s *Service) mutate(ctx context.Context, op func() (storage.JournalEntry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.portfolio.Snapshot()
	entry, err := op()
	if err != nil {
		return err
	}

	if err := s.store.Commit(ctx, s.portfolio.Snapshot(), entry); err != nil {
		if restoreErr := s.portfolio.Restore(before); restoreErr != nil {
			s.logger.Error("Failed to roll back after save error", "error", restoreErr)
		}
		return fmt.Errorf("failed to save account state: %w", err)
	}

	s.exportBalances()
	return nil
}

func (s *Service) exportBalances() {
	summary := s.portfolio.Summary(nil)
	m := telemetry.GetGlobalMetrics()
	balance, _ := summary.Balance.Float64()
	isolated, _ := summary.IsolatedMargin.Float64()
	cross, _ := summary.CrossMargin.Float64()
	m.SetBalance(balance)
	m.SetMarginUsed(core.MarginIsolated.String(), isolated)
	m.SetMarginUsed(core.MarginCross.String(), cross)
}
