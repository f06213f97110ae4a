package wallet

import "context"

// Outcome classifies a debit attempt. Infrastructure failures are reported
// through the error return instead, so callers can tell "the wallet said no"
// apart from "we do not know what the wallet did".
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeInsufficient Outcome = "insufficient_funds"
	OutcomeFailed       Outcome = "failed"
)

// Wallet fronts the platform's wallet service. Debit charges the entry fee
// for a registration; Refund returns money on cancellation. Amounts are in
// the smallest currency unit.
type Wallet interface {
	Debit(ctx context.Context, userID int, amount int64) (Outcome, error)
	Refund(ctx context.Context, userID int, amount int64) error
}
