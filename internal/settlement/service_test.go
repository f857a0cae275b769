package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dourian/RaceFi-sub000/internal/appclock"
	"github.com/dourian/RaceFi-sub000/internal/challenge"
	"github.com/dourian/RaceFi-sub000/internal/conformance"
	"github.com/dourian/RaceFi-sub000/internal/ledger"
	"github.com/dourian/RaceFi-sub000/internal/run"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
)

var challengeColumns = []string{
	"id", "name", "description", "encoded_path", "stake", "max_participants",
	"start_time", "end_time", "created_by", "settled_at", "created_at", "participant_count",
}

var participantColumns = []string{
	"user_id", "challenge_id", "status", "joined_at", "distance_m", "duration_sec", "pace",
	"completed_at", "is_winner", "reward_amount", "cashed_out_at",
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }
func ptrS(v string) *string   { return &v }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newService(mock pgxmock.PgxPoolIface, clock *appclock.Clock) *Service {
	checker := conformance.NewChecker(conformance.DefaultConfig(), nil)
	challenges := challenge.NewService(mock, checker, clock, nil)
	ledgerSvc := ledger.NewService(mock, clock, nil)
	return NewService(mock, challenges, ledgerSvc, clock)
}

func expectChallengeQuery(mock pgxmock.PgxPoolIface, clock *appclock.Clock, id string, count int, settledAt *time.Time, endsIn time.Duration) {
	mock.ExpectQuery(`SELECT c.id, c.name, c.description, c.encoded_path`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(challengeColumns).AddRow(
			id, "Waterfront 5K", "", "encoded", decimal.NewFromInt(5), 10,
			clock.Now().Add(-24*time.Hour), clock.Now().Add(endsIn), "creator-1", settledAt, clock.Now().Add(-48*time.Hour), count,
		))
}

func completedRow(clock *appclock.Clock, userID string, durationSec int64, joinedAgo time.Duration) []any {
	return []any{
		userID, "challenge-1", challenge.StatusCompleted, clock.Now().Add(-joinedAgo),
		ptrF(4800), ptrI(durationSec), ptrS("5:00"), nil, false, nil, nil,
	}
}

func TestResolveWinnerFastest(t *testing.T) {
	clock := appclock.New()
	participants := []challenge.ParticipantStatus{
		{UserID: "a", JoinedAt: clock.Now(), Metrics: &run.Metrics{DurationSec: 1500}},
		{UserID: "b", JoinedAt: clock.Now(), Metrics: &run.Metrics{DurationSec: 1200}},
		{UserID: "c", JoinedAt: clock.Now(), Metrics: &run.Metrics{DurationSec: 1800}},
	}

	winner, found := ResolveWinner(participants)
	if !found || winner.UserID != "b" {
		t.Fatalf("expected b to win, got %+v found=%v", winner, found)
	}
}

func TestResolveWinnerTieGoesToEarliestJoin(t *testing.T) {
	clock := appclock.New()
	participants := []challenge.ParticipantStatus{
		{UserID: "late", JoinedAt: clock.Now(), Metrics: &run.Metrics{DurationSec: 1200}},
		{UserID: "early", JoinedAt: clock.Now().Add(-time.Hour), Metrics: &run.Metrics{DurationSec: 1200}},
	}

	winner, found := ResolveWinner(participants)
	if !found || winner.UserID != "early" {
		t.Fatalf("expected early joiner to win the tie, got %+v", winner)
	}
}

func TestResolveWinnerEmpty(t *testing.T) {
	if _, found := ResolveWinner(nil); found {
		t.Fatal("expected no winner for an empty field")
	}
	withoutMetrics := []challenge.ParticipantStatus{{UserID: "a"}}
	if _, found := ResolveWinner(withoutMetrics); found {
		t.Fatal("participants without metrics cannot win")
	}
}

func TestSettle(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, -time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE challenges SET settled_at`).
		WithArgs("challenge-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT user_id, challenge_id, status, joined_at`).
		WithArgs("challenge-1", challenge.StatusCompleted).
		WillReturnRows(pgxmock.NewRows(participantColumns).
			AddRow(completedRow(clock, "runner-a", 1200, 3*time.Hour)...).
			AddRow(completedRow(clock, "runner-b", 1500, 4*time.Hour)...))
	mock.ExpectExec(`UPDATE participant_statuses`).
		WithArgs("runner-a", "challenge-1", challenge.StatusWinner, pgxmock.AnyArg(), challenge.StatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO balance_transactions`).
		WithArgs(pgxmock.AnyArg(), "runner-a", ledger.TypeWin, pgxmock.AnyArg(), "challenge-1", "Won Waterfront 5K", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO user_balances`).
		WithArgs("runner-a", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE participant_statuses`).
		WithArgs("runner-a", "challenge-1", challenge.StatusCashedOut, pgxmock.AnyArg(), challenge.StatusWinner).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := newService(mock, clock)
	result, err := svc.Settle(context.Background(), "challenge-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.WinnerID != "runner-a" {
		t.Fatalf("expected runner-a to win, got %q", result.WinnerID)
	}
	// Pool is 5 staked by each of the 4 joined participants, not just the
	// two who finished.
	if !result.Reward.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected reward of 20, got %s", result.Reward)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSettleBeforeEnd(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, time.Hour)

	svc := newService(mock, clock)
	if _, err := svc.Settle(context.Background(), "challenge-1"); !errors.Is(err, ErrChallengeNotExpired) {
		t.Fatalf("expected not-expired error, got %v", err)
	}
}

func TestSettleTwice(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	settledAt := clock.Now().Add(-time.Minute)
	expectChallengeQuery(mock, clock, "challenge-1", 4, &settledAt, -time.Hour)

	svc := newService(mock, clock)
	result, err := svc.Settle(context.Background(), "challenge-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.AlreadySettled {
		t.Fatalf("expected already-settled result: %+v", result)
	}

	// No claim, no winner update, no ledger credit.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("second settle must not write: %v", err)
	}
}

func TestSettleClaimLost(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, -time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE challenges SET settled_at`).
		WithArgs("challenge-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	svc := newService(mock, clock)
	result, err := svc.Settle(context.Background(), "challenge-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.AlreadySettled {
		t.Fatalf("losing the claim race should report already settled: %+v", result)
	}
}

func TestSettleCreditFailureRollsBackClaim(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	// The ledger insert fails mid-settlement. The whole transaction rolls
	// back, including the settled_at claim, so the next sweep can retry
	// and the winner is not stranded unpaid.
	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, -time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE challenges SET settled_at`).
		WithArgs("challenge-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT user_id, challenge_id, status, joined_at`).
		WithArgs("challenge-1", challenge.StatusCompleted).
		WillReturnRows(pgxmock.NewRows(participantColumns).
			AddRow(completedRow(clock, "runner-a", 1200, 3*time.Hour)...))
	mock.ExpectExec(`UPDATE participant_statuses`).
		WithArgs("runner-a", "challenge-1", challenge.StatusWinner, pgxmock.AnyArg(), challenge.StatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO balance_transactions`).
		WithArgs(pgxmock.AnyArg(), "runner-a", ledger.TypeWin, pgxmock.AnyArg(), "challenge-1", "Won Waterfront 5K", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	svc := newService(mock, clock)
	if _, err := svc.Settle(context.Background(), "challenge-1"); err == nil {
		t.Fatal("expected the failed credit to surface")
	}

	// Retry succeeds end to end because the claim was rolled back.
	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, -time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE challenges SET settled_at`).
		WithArgs("challenge-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT user_id, challenge_id, status, joined_at`).
		WithArgs("challenge-1", challenge.StatusCompleted).
		WillReturnRows(pgxmock.NewRows(participantColumns).
			AddRow(completedRow(clock, "runner-a", 1200, 3*time.Hour)...))
	mock.ExpectExec(`UPDATE participant_statuses`).
		WithArgs("runner-a", "challenge-1", challenge.StatusWinner, pgxmock.AnyArg(), challenge.StatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO balance_transactions`).
		WithArgs(pgxmock.AnyArg(), "runner-a", ledger.TypeWin, pgxmock.AnyArg(), "challenge-1", "Won Waterfront 5K", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO user_balances`).
		WithArgs("runner-a", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE participant_statuses`).
		WithArgs("runner-a", "challenge-1", challenge.StatusCashedOut, pgxmock.AnyArg(), challenge.StatusWinner).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	result, err := svc.Settle(context.Background(), "challenge-1")
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if result.WinnerID != "runner-a" || !result.Reward.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("retry should pay the winner: %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSettleNoFinishers(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, -time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE challenges SET settled_at`).
		WithArgs("challenge-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT user_id, challenge_id, status, joined_at`).
		WithArgs("challenge-1", challenge.StatusCompleted).
		WillReturnRows(pgxmock.NewRows(participantColumns))
	mock.ExpectCommit()

	svc := newService(mock, clock)
	result, err := svc.Settle(context.Background(), "challenge-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.WinnerID != "" || !result.Reward.IsZero() {
		t.Fatalf("expected no payout, got %+v", result)
	}
}

func TestSettleDue(t *testing.T) {
	mock := newMock(t)
	clock := appclock.New()

	mock.ExpectQuery(`SELECT id FROM challenges WHERE settled_at IS NULL`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("challenge-1"))
	expectChallengeQuery(mock, clock, "challenge-1", 4, nil, -time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE challenges SET settled_at`).
		WithArgs("challenge-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT user_id, challenge_id, status, joined_at`).
		WithArgs("challenge-1", challenge.StatusCompleted).
		WillReturnRows(pgxmock.NewRows(participantColumns))
	mock.ExpectCommit()

	svc := newService(mock, clock)
	results, err := svc.SettleDue(context.Background())
	if err != nil {
		t.Fatalf("settle due: %v", err)
	}
	if len(results) != 1 || results[0].ChallengeID != "challenge-1" {
		t.Fatalf("unexpected results: %+v", results)
	}
}
