package challenge

import (
	"time"

	"github.com/dourian/RaceFi-sub000/internal/run"

	"github.com/shopspring/decimal"
)

// Challenge is the staked route users race on. Rows are written once by the
// creation flow and read-only to the lifecycle engine afterwards.
type Challenge struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EncodedPath     string          `json:"encoded_path"`
	Stake           decimal.Decimal `json:"stake"`
	MaxParticipants int             `json:"max_participants"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	CreatedBy       string          `json:"created_by"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`

	// Derived on read.
	ParticipantCount int `json:"participant_count"`
}

// ParticipantStatus tracks one user's progress through one challenge.
// Metrics are present exactly when the status has reached completed, and
// RewardAmount exactly when it has reached winner.
type ParticipantStatus struct {
	UserID       string           `json:"user_id"`
	ChallengeID  string           `json:"challenge_id"`
	Status       Status           `json:"status"`
	JoinedAt     time.Time        `json:"joined_at,omitempty"`
	Metrics      *run.Metrics     `json:"run_metrics,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	IsWinner     bool             `json:"is_winner"`
	RewardAmount *decimal.Decimal `json:"reward_amount,omitempty"`
	CashedOutAt  *time.Time       `json:"cashed_out_at,omitempty"`
}

// NotJoined is the fresh record returned for pairs with no stored status.
func NotJoined(userID, challengeID string) ParticipantStatus {
	return ParticipantStatus{
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      StatusNotJoined,
	}
}
