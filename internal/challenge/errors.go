package challenge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dourian/RaceFi-sub000/internal/conformance"
)

var (
	ErrNotFound       = errors.New("challenge not found")
	ErrAlreadyJoined  = errors.New("already joined this challenge")
	ErrChallengeFull  = errors.New("challenge is full")
	ErrNotJoined      = errors.New("join the challenge before starting a run")
	ErrRunFinished    = errors.New("run already completed for this challenge")
	ErrChallengeEnded = errors.New("challenge window has closed")
	ErrStakeRejected  = errors.New("stake could not be reserved")
)

// ConformanceError carries the full check report back to the caller. It is
// recoverable: the participant stays in-progress and may run again.
type ConformanceError struct {
	Report conformance.Report
}

func (e *ConformanceError) Error() string {
	failed := e.Report.FailedChecks()
	if len(failed) == 0 {
		return "run verification failed"
	}
	return fmt.Sprintf("run verification failed: %s", strings.Join(failed, ", "))
}
