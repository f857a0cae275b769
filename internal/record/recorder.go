package record

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/dourian/RaceFi-sub000/internal/challenge"
	"github.com/dourian/RaceFi-sub000/internal/run"
	"github.com/dourian/RaceFi-sub000/internal/shared/geo"
	"github.com/dourian/RaceFi-sub000/internal/stream"
)

var ErrNoActiveRecording = errors.New("no active recording for this challenge")

const (
	// Samples arriving faster than the cadence AND closer than the jitter
	// radius carry no information and are dropped.
	minSampleGapMs = 1000
	minSampleGapM  = 5
)

// Lifecycle is the slice of the challenge service the recorder drives.
type Lifecycle interface {
	StartRun(ctx context.Context, userID, challengeID string) (challenge.ParticipantStatus, error)
	CompleteRun(ctx context.Context, userID, challengeID string, trace run.Trace) (challenge.ParticipantStatus, error)
}

// Publisher pushes live updates out to websocket subscribers.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

type session struct {
	trace run.Trace
}

// Recorder holds in-flight GPS traces in memory, one per (user, challenge)
// pair. A trace only touches the database once it is finished and verified;
// an abandoned recording leaves no trace at all.
type Recorder struct {
	lifecycle Lifecycle
	hub       Publisher

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRecorder(lifecycle Lifecycle, hub Publisher) *Recorder {
	return &Recorder{
		lifecycle: lifecycle,
		hub:       hub,
		sessions:  map[string]*session{},
	}
}

func key(userID, challengeID string) string {
	return userID + ":" + challengeID
}

// Start opens a recording session and moves the participant to in-progress.
// Starting again while a session is open resumes it.
func (r *Recorder) Start(ctx context.Context, userID, challengeID string) (challenge.ParticipantStatus, error) {
	status, err := r.lifecycle.StartRun(ctx, userID, challengeID)
	if err != nil {
		return challenge.ParticipantStatus{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key(userID, challengeID)] == nil {
		r.sessions[key(userID, challengeID)] = &session{}
	}
	return status, nil
}

// Append adds GPS samples to the open session and returns live metrics for
// the trace so far. Samples that move backward in time are rejected;
// sub-cadence samples are silently dropped.
func (r *Recorder) Append(userID, challengeID string, samples []run.GpsSample) (run.Metrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[key(userID, challengeID)]
	if s == nil {
		return run.Metrics{}, ErrNoActiveRecording
	}

	for _, sample := range samples {
		if len(s.trace) > 0 {
			last := s.trace[len(s.trace)-1]
			if sample.TimestampMs <= last.TimestampMs {
				continue
			}
			gapM := geo.HaversineM(last.Lat, last.Lng, sample.Lat, sample.Lng)
			if sample.TimestampMs-last.TimestampMs < minSampleGapMs && gapM < minSampleGapM {
				continue
			}
		}
		s.trace = append(s.trace, sample)
		r.publish(userID, challengeID, sample)
	}

	return run.Compute(s.trace), nil
}

// Live returns metrics for the trace recorded so far.
func (r *Recorder) Live(userID, challengeID string) (run.Metrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[key(userID, challengeID)]
	if s == nil {
		return run.Metrics{}, ErrNoActiveRecording
	}
	return run.Compute(s.trace), nil
}

// Finish closes the session and submits the trace for verification. On a
// failed verdict the session stays open, so the runner can keep going and
// submit again.
func (r *Recorder) Finish(ctx context.Context, userID, challengeID string) (challenge.ParticipantStatus, error) {
	// Snapshot under the lock; appends racing this call land in the
	// session, not in the trace handed to verification.
	r.mu.Lock()
	s := r.sessions[key(userID, challengeID)]
	var trace run.Trace
	if s != nil {
		trace = append(run.Trace{}, s.trace...)
	}
	r.mu.Unlock()
	if s == nil {
		return challenge.ParticipantStatus{}, ErrNoActiveRecording
	}

	status, err := r.lifecycle.CompleteRun(ctx, userID, challengeID, trace)
	if err != nil {
		return challenge.ParticipantStatus{}, err
	}

	r.mu.Lock()
	delete(r.sessions, key(userID, challengeID))
	r.mu.Unlock()
	return status, nil
}

// Abandon discards the session without submitting anything.
func (r *Recorder) Abandon(userID, challengeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key(userID, challengeID))
}

func (r *Recorder) publish(userID, challengeID string, sample run.GpsSample) {
	if r.hub == nil {
		return
	}
	payload, err := json.Marshal(sample)
	if err != nil {
		log.Printf("marshal live sample: %v", err)
		return
	}
	r.hub.Broadcast(stream.RunTopic(userID, challengeID), payload)
}
