package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dourian/RaceFi-sub000/internal/appclock"
	"github.com/dourian/RaceFi-sub000/internal/challenge"
	"github.com/dourian/RaceFi-sub000/internal/db"
	"github.com/dourian/RaceFi-sub000/internal/ledger"
	"github.com/dourian/RaceFi-sub000/internal/prize"

	"github.com/shopspring/decimal"
)

var ErrChallengeNotExpired = errors.New("challenge has not ended yet")

// Result describes one settlement attempt. AlreadySettled means a previous
// call (or a concurrent one) claimed the challenge first; nothing was paid.
type Result struct {
	ChallengeID    string          `json:"challenge_id"`
	AlreadySettled bool            `json:"already_settled"`
	WinnerID       string          `json:"winner_id,omitempty"`
	Reward         decimal.Decimal `json:"reward"`
	SettledAt      time.Time       `json:"settled_at"`
}

// Service settles expired challenges: resolve the winner, compute the pool
// from the collected stakes, credit the ledger, and advance the winner's
// status to cashed-out.
type Service struct {
	db         db.TxBeginner
	challenges *challenge.Service
	ledger     *ledger.Service
	clock      *appclock.Clock
}

func NewService(db db.TxBeginner, challenges *challenge.Service, ledgerSvc *ledger.Service, clock *appclock.Clock) *Service {
	return &Service{
		db:         db,
		challenges: challenges,
		ledger:     ledgerSvc,
		clock:      clock,
	}
}

// Settle finalizes one challenge. It refuses to run before the end time and
// is idempotent: the settled_at claim below succeeds exactly once, so a
// repeat call can never credit a second pool. Claim and credit share one
// transaction, so a failed credit rolls the claim back and the next sweep
// retries the payout.
func (s *Service) Settle(ctx context.Context, challengeID string) (Result, error) {
	ch, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return Result{}, err
	}

	now := s.clock.Now()
	if !s.clock.IsExpired(ch.EndTime) {
		return Result{}, ErrChallengeNotExpired
	}
	if ch.SettledAt != nil {
		return Result{ChallengeID: challengeID, AlreadySettled: true, SettledAt: *ch.SettledAt}, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE challenges SET settled_at=$2 WHERE id=$1 AND settled_at IS NULL
	`, challengeID, now)
	if err != nil {
		return Result{}, err
	}
	if tag.RowsAffected() == 0 {
		return Result{ChallengeID: challengeID, AlreadySettled: true, SettledAt: now}, nil
	}

	completed, err := s.challenges.CompletedParticipants(ctx, tx, challengeID)
	if err != nil {
		return Result{}, err
	}

	result := Result{ChallengeID: challengeID, SettledAt: now}
	winner, found := ResolveWinner(completed)
	if found {
		// The pool counts every collected stake, not just verified finishers.
		pool, err := prize.Pool(ch.Stake, ch.ParticipantCount)
		if err != nil {
			return Result{}, err
		}

		if err := s.challenges.MarkWinner(ctx, tx, winner.UserID, challengeID, pool); err != nil {
			return Result{}, err
		}
		description := fmt.Sprintf("Won %s", ch.Name)
		if _, err := s.ledger.CreditWinTx(ctx, tx, winner.UserID, challengeID, description, pool); err != nil {
			return Result{}, err
		}
		if err := s.challenges.MarkCashedOut(ctx, tx, winner.UserID, challengeID); err != nil {
			return Result{}, err
		}

		result.WinnerID = winner.UserID
		result.Reward = pool
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	if found {
		s.ledger.PushBalance(ctx, winner.UserID)
	}
	return result, nil
}

// SettleDue settles every challenge whose window has closed and that has no
// settlement claim yet. Individual failures are collected, not fatal, so one
// bad challenge cannot stall the sweep.
func (s *Service) SettleDue(ctx context.Context) ([]Result, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM challenges WHERE settled_at IS NULL AND end_time <= $1 ORDER BY end_time
	`, s.clock.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	var results []Result
	var errs []error
	for _, id := range ids {
		result, err := s.Settle(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("settle %s: %w", id, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}
