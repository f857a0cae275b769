package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dourian/RaceFi-sub000/internal/appclock"
	"github.com/dourian/RaceFi-sub000/internal/conformance"
	"github.com/dourian/RaceFi-sub000/internal/db"
	"github.com/dourian/RaceFi-sub000/internal/prize"
	"github.com/dourian/RaceFi-sub000/internal/run"
	"github.com/dourian/RaceFi-sub000/internal/wallet"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Service orchestrates the per-(user, challenge) lifecycle. Operations on
// the same pair are serialized through a pair mutex; different pairs run in
// parallel.
type Service struct {
	db      db.Querier
	checker *conformance.Checker
	clock   *appclock.Clock
	wallet  *wallet.Client

	mu    sync.Mutex
	pairs map[string]*sync.Mutex
}

func NewService(db db.Querier, checker *conformance.Checker, clock *appclock.Clock, walletClient *wallet.Client) *Service {
	return &Service{
		db:      db,
		checker: checker,
		clock:   clock,
		wallet:  walletClient,
		pairs:   map[string]*sync.Mutex{},
	}
}

func (s *Service) pairLock(userID, challengeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + ":" + challengeID
	if s.pairs[key] == nil {
		s.pairs[key] = &sync.Mutex{}
	}
	return s.pairs[key]
}

// CreateChallenge stores a new staked route. Creation belongs to the
// challenge-authoring flow; the lifecycle operations below treat the row as
// read-only.
func (s *Service) CreateChallenge(ctx context.Context, input Challenge) (Challenge, error) {
	if input.Stake.LessThanOrEqual(decimal.Zero) {
		return Challenge{}, prize.ErrInvalidStake
	}
	if input.MaxParticipants <= 0 {
		return Challenge{}, errors.New("max_participants must be positive")
	}
	if input.EncodedPath == "" {
		return Challenge{}, errors.New("encoded_path required")
	}
	if !input.EndTime.After(input.StartTime) {
		return Challenge{}, errors.New("end_time must be after start_time")
	}

	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO challenges (id, name, description, encoded_path, stake, max_participants, start_time, end_time, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, input.ID, input.Name, input.Description, input.EncodedPath, input.Stake, input.MaxParticipants, input.StartTime, input.EndTime, input.CreatedBy)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Challenge{}, err
	}
	return input, nil
}

// GetChallenge loads one challenge with its live participant count.
func (s *Service) GetChallenge(ctx context.Context, id string) (Challenge, error) {
	row := s.db.QueryRow(ctx, `
		SELECT c.id, c.name, c.description, c.encoded_path, c.stake, c.max_participants,
		       c.start_time, c.end_time, c.created_by, c.settled_at, c.created_at,
		       (SELECT COUNT(*) FROM participant_statuses p WHERE p.challenge_id = c.id)
		FROM challenges c WHERE c.id=$1
	`, id)

	var ch Challenge
	err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.EncodedPath, &ch.Stake, &ch.MaxParticipants,
		&ch.StartTime, &ch.EndTime, &ch.CreatedBy, &ch.SettledAt, &ch.CreatedAt, &ch.ParticipantCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Challenge{}, ErrNotFound
		}
		return Challenge{}, err
	}
	return ch, nil
}

// ListChallenges returns challenges ending soonest first.
func (s *Service) ListChallenges(ctx context.Context) ([]Challenge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.description, c.encoded_path, c.stake, c.max_participants,
		       c.start_time, c.end_time, c.created_by, c.settled_at, c.created_at,
		       (SELECT COUNT(*) FROM participant_statuses p WHERE p.challenge_id = c.id)
		FROM challenges c
		ORDER BY c.end_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []Challenge
	for rows.Next() {
		var ch Challenge
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.EncodedPath, &ch.Stake, &ch.MaxParticipants,
			&ch.StartTime, &ch.EndTime, &ch.CreatedBy, &ch.SettledAt, &ch.CreatedAt, &ch.ParticipantCount); err != nil {
			return nil, err
		}
		challenges = append(challenges, ch)
	}
	return challenges, nil
}

// Join stakes the user into a challenge. Requires a fresh pair, a free slot,
// and a successful stake reservation with the wallet subsystem.
func (s *Service) Join(ctx context.Context, userID, challengeID string) (ParticipantStatus, error) {
	lock := s.pairLock(userID, challengeID)
	lock.Lock()
	defer lock.Unlock()

	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return ParticipantStatus{}, err
	}
	if s.clock.IsExpired(ch.EndTime) {
		return ParticipantStatus{}, ErrChallengeEnded
	}

	current, err := s.GetStatus(ctx, userID, challengeID)
	if err != nil {
		return ParticipantStatus{}, err
	}
	if current.Status != StatusNotJoined {
		return ParticipantStatus{}, ErrAlreadyJoined
	}
	if prize.RemainingSlots(ch.MaxParticipants, ch.ParticipantCount) == 0 {
		return ParticipantStatus{}, ErrChallengeFull
	}

	if err := s.wallet.Reserve(ctx, userID, challengeID, ch.Stake); err != nil {
		return ParticipantStatus{}, fmt.Errorf("%w: %v", ErrStakeRejected, err)
	}

	status := ParticipantStatus{
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      StatusJoined,
		JoinedAt:    s.clock.Now(),
	}
	// The count loaded above can go stale while other users join. The
	// insert re-checks capacity against the live count, so the last slot
	// is handed out exactly once.
	tag, err := s.db.Exec(ctx, `
		INSERT INTO participant_statuses (user_id, challenge_id, status, joined_at)
		SELECT $1, $2, $3, $4
		WHERE (SELECT COUNT(*) FROM participant_statuses WHERE challenge_id = $2) < $5
	`, status.UserID, status.ChallengeID, status.Status, status.JoinedAt, ch.MaxParticipants)
	if err != nil {
		return ParticipantStatus{}, err
	}
	if tag.RowsAffected() == 0 {
		return ParticipantStatus{}, ErrChallengeFull
	}
	return status, nil
}

// StartRun moves joined -> in-progress. Re-entry while already in-progress
// is a no-op so an app relaunch can resume a recording.
func (s *Service) StartRun(ctx context.Context, userID, challengeID string) (ParticipantStatus, error) {
	lock := s.pairLock(userID, challengeID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.GetStatus(ctx, userID, challengeID)
	if err != nil {
		return ParticipantStatus{}, err
	}

	switch current.Status {
	case StatusNotJoined:
		return ParticipantStatus{}, ErrNotJoined
	case StatusInProgress:
		return current, nil
	case StatusJoined:
	default:
		return ParticipantStatus{}, ErrRunFinished
	}

	_, err = s.db.Exec(ctx, `
		UPDATE participant_statuses SET status=$3
		WHERE user_id=$1 AND challenge_id=$2
	`, userID, challengeID, StatusInProgress)
	if err != nil {
		return ParticipantStatus{}, err
	}
	current.Status = StatusInProgress
	return current, nil
}

// CompleteRun verifies the trace against the challenge route and, on a pass,
// finalizes the run. A failed verdict returns a *ConformanceError with the
// per-check report and leaves the status in-progress, so the user can try
// the route again.
func (s *Service) CompleteRun(ctx context.Context, userID, challengeID string, trace run.Trace) (ParticipantStatus, error) {
	lock := s.pairLock(userID, challengeID)
	lock.Lock()
	defer lock.Unlock()

	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return ParticipantStatus{}, err
	}

	current, err := s.GetStatus(ctx, userID, challengeID)
	if err != nil {
		return ParticipantStatus{}, err
	}
	switch current.Status {
	case StatusNotJoined, StatusJoined:
		return ParticipantStatus{}, ErrNotJoined
	case StatusInProgress:
	default:
		return ParticipantStatus{}, ErrRunFinished
	}

	report := s.checker.Verify(ctx, trace, ch.EncodedPath)
	if !report.Passed {
		return ParticipantStatus{}, &ConformanceError{Report: report}
	}

	metrics := run.Compute(trace)
	now := s.clock.Now()
	_, err = s.db.Exec(ctx, `
		UPDATE participant_statuses
		SET status=$3, distance_m=$4, duration_sec=$5, pace=$6, completed_at=$7
		WHERE user_id=$1 AND challenge_id=$2
	`, userID, challengeID, StatusCompleted, metrics.DistanceM, metrics.DurationSec, metrics.Pace, now)
	if err != nil {
		return ParticipantStatus{}, err
	}

	coords := make([][]float64, len(trace))
	for i, sample := range trace {
		coords[i] = []float64{sample.Lat, sample.Lng}
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO runs (id, user_id, challenge_id, encoded_trace, distance_m, duration_sec, pace, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.NewString(), userID, challengeID, conformance.EncodeTrace(coords), metrics.DistanceM, metrics.DurationSec, metrics.Pace, now)
	if err != nil {
		return ParticipantStatus{}, err
	}

	current.Status = StatusCompleted
	current.Metrics = &metrics
	current.CompletedAt = &now
	return current, nil
}

// GetStatus returns the stored status, or a fresh not-joined record for
// unknown pairs. It never fails on absence.
func (s *Service) GetStatus(ctx context.Context, userID, challengeID string) (ParticipantStatus, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, challenge_id, status, joined_at, distance_m, duration_sec, pace,
		       completed_at, is_winner, reward_amount, cashed_out_at
		FROM participant_statuses WHERE user_id=$1 AND challenge_id=$2
	`, userID, challengeID)

	status, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotJoined(userID, challengeID), nil
		}
		return ParticipantStatus{}, err
	}
	return status, nil
}

// CompletedParticipants lists everyone whose run verified, for settlement.
// The querier is the caller's, so settlement can read inside its own
// transaction.
func (s *Service) CompletedParticipants(ctx context.Context, q db.Querier, challengeID string) ([]ParticipantStatus, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, challenge_id, status, joined_at, distance_m, duration_sec, pace,
		       completed_at, is_winner, reward_amount, cashed_out_at
		FROM participant_statuses
		WHERE challenge_id=$1 AND status=$2
		ORDER BY joined_at
	`, challengeID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []ParticipantStatus
	for rows.Next() {
		status, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, status)
	}
	return participants, nil
}

// MarkWinner advances completed -> winner with the computed reward.
func (s *Service) MarkWinner(ctx context.Context, q db.Querier, userID, challengeID string, reward decimal.Decimal) error {
	_, err := q.Exec(ctx, `
		UPDATE participant_statuses
		SET status=$3, is_winner=TRUE, reward_amount=$4
		WHERE user_id=$1 AND challenge_id=$2 AND status=$5
	`, userID, challengeID, StatusWinner, reward, StatusCompleted)
	return err
}

// MarkCashedOut advances winner -> cashed-out once the reward has been
// credited to the balance ledger.
func (s *Service) MarkCashedOut(ctx context.Context, q db.Querier, userID, challengeID string) error {
	_, err := q.Exec(ctx, `
		UPDATE participant_statuses
		SET status=$3, cashed_out_at=$4
		WHERE user_id=$1 AND challenge_id=$2 AND status=$5
	`, userID, challengeID, StatusCashedOut, s.clock.Now(), StatusWinner)
	return err
}

// Reset discards the stored pair so the user is back to not-joined. History
// is deleted, never rewound; this is a test/demo affordance.
func (s *Service) Reset(ctx context.Context, userID, challengeID string) error {
	lock := s.pairLock(userID, challengeID)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.Exec(ctx, `
		DELETE FROM participant_statuses WHERE user_id=$1 AND challenge_id=$2
	`, userID, challengeID)
	return err
}

// ResetAll discards every stored status for the user.
func (s *Service) ResetAll(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM participant_statuses WHERE user_id=$1
	`, userID)
	return err
}

func scanParticipant(row pgx.Row) (ParticipantStatus, error) {
	var (
		status      ParticipantStatus
		distanceM   *float64
		durationSec *int64
		pace        *string
		reward      *decimal.Decimal
	)
	err := row.Scan(&status.UserID, &status.ChallengeID, &status.Status, &status.JoinedAt,
		&distanceM, &durationSec, &pace, &status.CompletedAt, &status.IsWinner, &reward, &status.CashedOutAt)
	if err != nil {
		return ParticipantStatus{}, err
	}

	if distanceM != nil && durationSec != nil && pace != nil {
		status.Metrics = &run.Metrics{
			DistanceM:   *distanceM,
			DurationSec: *durationSec,
			Pace:        *pace,
		}
	}
	status.RewardAmount = reward
	return status, nil
}
