package settlement

import (
	"github.com/dourian/RaceFi-sub000/internal/challenge"
)

// ResolveWinner picks the fastest verified run. Ties on duration go to the
// participant who joined first, so the ordering is deterministic for any
// input. The second return is false when nobody completed the route.
func ResolveWinner(completed []challenge.ParticipantStatus) (challenge.ParticipantStatus, bool) {
	var winner challenge.ParticipantStatus
	found := false

	for _, p := range completed {
		if p.Metrics == nil {
			continue
		}
		if !found {
			winner = p
			found = true
			continue
		}
		if p.Metrics.DurationSec < winner.Metrics.DurationSec {
			winner = p
			continue
		}
		if p.Metrics.DurationSec == winner.Metrics.DurationSec && p.JoinedAt.Before(winner.JoinedAt) {
			winner = p
		}
	}
	return winner, found
}
