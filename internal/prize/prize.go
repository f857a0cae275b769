package prize

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStake            = errors.New("stake must be positive")
	ErrInvalidParticipantCount = errors.New("participant count must not be negative")
)

// Pool returns the prize pool for a challenge: stake collected from every
// participant.
func Pool(stake decimal.Decimal, participantCount int) (decimal.Decimal, error) {
	if stake.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidStake
	}
	if participantCount < 0 {
		return decimal.Zero, ErrInvalidParticipantCount
	}
	return stake.Mul(decimal.NewFromInt(int64(participantCount))), nil
}

// Validation reports whether a stored prize-pool figure agrees with the
// recomputed one. A discrepancy indicates a bug upstream (stale cached pool)
// and should be surfaced, not silently corrected.
type Validation struct {
	IsValid     bool            `json:"is_valid"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

func Validate(stake decimal.Decimal, participantCount int, storedPool decimal.Decimal) (Validation, error) {
	expected, err := Pool(stake, participantCount)
	if err != nil {
		return Validation{}, err
	}
	return Validation{
		IsValid:     expected.Equal(storedPool),
		Expected:    expected,
		Actual:      storedPool,
		Discrepancy: storedPool.Sub(expected),
	}, nil
}

// RemainingSlots returns how many participants can still join.
func RemainingSlots(maxParticipants, participantCount int) int {
	remaining := maxParticipants - participantCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PercentFull returns occupancy as 0-100.
func PercentFull(maxParticipants, participantCount int) float64 {
	if maxParticipants <= 0 {
		return 0
	}
	pct := float64(participantCount) / float64(maxParticipants) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// MaxPotentialPool is the pool if the challenge fills up.
func MaxPotentialPool(stake decimal.Decimal, maxParticipants int) (decimal.Decimal, error) {
	return Pool(stake, maxParticipants)
}
