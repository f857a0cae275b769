package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeWin     = "win"
	TypeCashout = "cashout"
)

// Transaction is one append-only ledger entry. Entries are never edited or
// deleted; a reversal would be a new offsetting entry.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	ChallengeID string          `json:"challenge_id,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Balance is the spendable position derived from the transaction log.
// TotalBalance always equals TotalEarned - TotalCashedOut.
type Balance struct {
	UserID         string          `json:"user_id"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalCashedOut decimal.Decimal `json:"total_cashed_out"`
	LastCashoutAt  *time.Time      `json:"last_cashout_at,omitempty"`
}
