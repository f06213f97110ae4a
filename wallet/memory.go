package wallet

import (
	"context"
	"errors"
	"sync"
)

// MemoryWallet keeps balances in memory. Used by tests and local development
// when no wallet service is configured.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[int]int64
	failNext error
}

func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[int]int64)}
}

func (w *MemoryWallet) SetBalance(userID int, amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = amount
}

func (w *MemoryWallet) Balance(userID int) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

// FailNext makes the next Debit return the given infrastructure error.
func (w *MemoryWallet) FailNext(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failNext = err
}

func (w *MemoryWallet) Debit(ctx context.Context, userID int, amount int64) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return OutcomeFailed, err
	}
	if amount < 0 {
		return OutcomeFailed, errors.New("negative debit amount")
	}
	if w.balances[userID] < amount {
		return OutcomeInsufficient, nil
	}
	w.balances[userID] -= amount
	return OutcomeConfirmed, nil
}

func (w *MemoryWallet) Refund(ctx context.Context, userID int, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] += amount
	return nil
}
