package challenge

// Status is the per-(user, challenge) lifecycle state. It only ever advances;
// the single backward path is an explicit reset, modeled as deleting the
// participant record rather than a transition.
type Status string

const (
	StatusNotJoined  Status = "not-joined"
	StatusJoined     Status = "joined"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusWinner     Status = "winner"
	StatusCashedOut  Status = "cashed-out"
)

var statusOrder = map[Status]int{
	StatusNotJoined:  0,
	StatusJoined:     1,
	StatusInProgress: 2,
	StatusCompleted:  3,
	StatusWinner:     4,
	StatusCashedOut:  5,
}

// Valid reports whether s is one of the six lifecycle states.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransition reports whether from -> to is a legal single step. No state
// is ever skipped and no transition moves backward.
func CanTransition(from, to Status) bool {
	fromOrder, ok := statusOrder[from]
	if !ok {
		return false
	}
	toOrder, ok := statusOrder[to]
	if !ok {
		return false
	}
	return toOrder == fromOrder+1
}

// AtLeast reports whether s has reached the given stage.
func (s Status) AtLeast(stage Status) bool {
	return statusOrder[s] >= statusOrder[stage]
}

// HasRun reports whether a verified run is recorded for this status; run
// metrics exist exactly for these states.
func (s Status) HasRun() bool {
	return s.AtLeast(StatusCompleted)
}
