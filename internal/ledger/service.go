package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dourian/RaceFi-sub000/internal/appclock"
	"github.com/dourian/RaceFi-sub000/internal/db"
	"github.com/dourian/RaceFi-sub000/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance for cashout")
	ErrNothingToCashOut    = errors.New("no balance to cash out")
)

// Publisher pushes balance events to subscribers on every mutation, instead
// of clients polling the balance endpoint.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

type Service struct {
	db    db.Querier
	clock *appclock.Clock
	hub   Publisher
}

func NewService(db db.Querier, clock *appclock.Clock, hub Publisher) *Service {
	return &Service{db: db, clock: clock, hub: hub}
}

// CreditWin appends a win transaction and grows the balance. The balance row
// stores earned and cashed-out totals only; the spendable balance is always
// derived as their difference, so the invariant cannot drift.
func (s *Service) CreditWin(ctx context.Context, userID, challengeID, description string, amount decimal.Decimal) (Transaction, error) {
	tx, err := s.CreditWinTx(ctx, s.db, userID, challengeID, description, amount)
	if err != nil {
		return Transaction{}, err
	}
	s.PushBalance(ctx, userID)
	return tx, nil
}

// CreditWinTx appends the win entries on the caller's querier, which may be
// an open pgx transaction. The caller pushes the balance event once its
// transaction commits.
func (s *Service) CreditWinTx(ctx context.Context, q db.Querier, userID, challengeID, description string, amount decimal.Decimal) (Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Transaction{}, ErrInvalidAmount
	}

	tx := Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        TypeWin,
		Amount:      amount,
		ChallengeID: challengeID,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}
	_, err := q.Exec(ctx, `
		INSERT INTO balance_transactions (id, user_id, type, amount, challenge_id, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, tx.UserID, tx.Type, tx.Amount, tx.ChallengeID, tx.Description, tx.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO user_balances (user_id, total_earned, total_cashed_out)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET total_earned = user_balances.total_earned + EXCLUDED.total_earned
	`, userID, amount)
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// CashOut appends a cashout transaction. A nil amount cashes out the whole
// balance.
func (s *Service) CashOut(ctx context.Context, userID string, amount *decimal.Decimal) (Transaction, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	if balance.TotalBalance.LessThanOrEqual(decimal.Zero) {
		return Transaction{}, ErrNothingToCashOut
	}

	cashout := balance.TotalBalance
	if amount != nil {
		cashout = *amount
	}
	if cashout.LessThanOrEqual(decimal.Zero) {
		return Transaction{}, ErrInvalidAmount
	}
	if cashout.GreaterThan(balance.TotalBalance) {
		return Transaction{}, ErrInsufficientBalance
	}

	now := s.clock.Now()
	tx := Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        TypeCashout,
		Amount:      cashout,
		Description: fmt.Sprintf("Cashed out %s to wallet", cashout),
		CreatedAt:   now,
	}

	// Claim the funds first. The guard re-checks the balance inside the
	// update, so a concurrent cashout of the same funds loses the claim
	// instead of driving the balance negative.
	tag, err := s.db.Exec(ctx, `
		UPDATE user_balances
		SET total_cashed_out = total_cashed_out + $2, last_cashout_at = $3
		WHERE user_id = $1 AND total_earned - total_cashed_out >= $2
	`, userID, cashout, now)
	if err != nil {
		return Transaction{}, err
	}
	if tag.RowsAffected() == 0 {
		return Transaction{}, ErrInsufficientBalance
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO balance_transactions (id, user_id, type, amount, challenge_id, description, created_at)
		VALUES ($1,$2,$3,$4,NULL,$5,$6)
	`, tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Description, tx.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}

	s.PushBalance(ctx, userID)
	return tx, nil
}

// Balance returns the user's position; unknown users get a zero balance.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	balance := Balance{
		UserID:         userID,
		TotalBalance:   decimal.Zero,
		TotalEarned:    decimal.Zero,
		TotalCashedOut: decimal.Zero,
	}

	var lastCashout *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT total_earned, total_cashed_out, total_earned - total_cashed_out, last_cashout_at
		FROM user_balances WHERE user_id=$1
	`, userID).Scan(&balance.TotalEarned, &balance.TotalCashedOut, &balance.TotalBalance, &lastCashout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balance, nil
		}
		return Balance{}, err
	}
	balance.LastCashoutAt = lastCashout
	return balance, nil
}

// Transactions lists a user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, amount, COALESCE(challenge_id, ''), description, created_at
		FROM balance_transactions WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.ChallengeID, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ChallengeTransactions lists ledger entries tied to one challenge.
func (s *Service) ChallengeTransactions(ctx context.Context, userID, challengeID string) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, amount, COALESCE(challenge_id, ''), description, created_at
		FROM balance_transactions WHERE user_id=$1 AND challenge_id=$2
		ORDER BY created_at DESC
	`, userID, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.ChallengeID, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// PushBalance broadcasts the user's committed balance to subscribers.
func (s *Service) PushBalance(ctx context.Context, userID string) {
	if s.hub == nil {
		return
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(balance)
	s.hub.Broadcast(stream.BalanceTopic(userID), payload)
}
