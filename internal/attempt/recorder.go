package attempt

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/osceprep/patientsim/internal/engine"
	"github.com/osceprep/patientsim/internal/model"
)

// ErrIdleSession is returned when a session with no learner activity is
// finished: idle sessions are discarded, not recorded.
var ErrIdleSession = errors.New("session has no learner activity to record")

// ErrAttemptNotFound is returned for overrides against unknown attempts.
var ErrAttemptNotFound = errors.New("attempt not found")

func errNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrAttemptNotFound, id)
}

// Recorder owns finished attempts: it snapshots sessions into
// ScenarioAttempts and merges mentor reviews into stored ones.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder on the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record snapshots a session at the moment "finish" is invoked:
// transcript, elapsed duration, and the current score, finalized or
// not. Sessions without a single learner utterance or timer expiry are
// discarded with ErrIdleSession.
func (r *Recorder) Record(sess engine.Session, startedAt time.Time) (*model.ScenarioAttempt, error) {
	if sess.LearnerTurns() == 0 && sess.Timer.State != engine.TimerExpired {
		return nil, ErrIdleSession
	}

	a := model.ScenarioAttempt{
		ID:         uuid.NewString(),
		ScenarioID: sess.Scenario.ID,
		StartedAt:  startedAt,
		Duration:   time.Duration(sess.Timer.Elapsed()) * time.Second,
		Transcript: sess.Transcript,
		FinalScore: sess.Score,
	}
	if err := r.store.InsertAttempt(a); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return &a, nil
}

// ApplyMentorOverride merges a partial score override into a stored
// attempt: per-dimension replace-if-present, other dimensions and the
// transcript untouched. Values are clamped to [0,100] and unknown
// dimension names are rejected before anything is written. The derived
// difficulty tier is never re-computed for stored attempts.
func (r *Recorder) ApplyMentorOverride(id string, override map[string]int, comment string) (*model.ScenarioAttempt, error) {
	clamped := make(map[string]int, len(override))
	for name, value := range override {
		if _, ok := (&model.PerformanceScore{}).Dimension(name); !ok {
			return nil, fmt.Errorf("unknown score dimension %q", name)
		}
		if value < 0 {
			value = 0
		}
		if value > 100 {
			value = 100
		}
		clamped[name] = value
	}

	a, err := r.store.GetAttempt(id)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a == nil {
		return nil, errNotFound(id)
	}

	score := a.FinalScore
	for name, value := range clamped {
		score.SetDimension(name, value)
	}

	merged := a.MentorOverride
	if merged == nil {
		merged = make(map[string]int, len(clamped))
	}
	for name, value := range clamped {
		merged[name] = value
	}
	if comment == "" {
		comment = a.MentorComment
	}

	if err := r.store.UpdateAttemptReview(id, score, merged, comment); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	a.FinalScore = score
	a.MentorOverride = merged
	a.MentorComment = comment
	return a, nil
}

// Attempt returns a stored attempt by id.
func (r *Recorder) Attempt(id string) (*model.ScenarioAttempt, error) {
	a, err := r.store.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errNotFound(id)
	}
	return a, nil
}

// Attempts returns all stored attempts, newest first.
func (r *Recorder) Attempts() ([]model.ScenarioAttempt, error) {
	return r.store.ListAttempts()
}
