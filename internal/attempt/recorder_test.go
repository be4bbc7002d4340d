package attempt

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/osceprep/patientsim/internal/engine"
	"github.com/osceprep/patientsim/internal/model"
)

func testScenario() *model.ScenarioDefinition {
	return &model.ScenarioDefinition{
		ID:              "test",
		DurationMinutes: 5,
		StartNodeID:     "a",
		Nodes: map[string]model.ScenarioNode{
			"a": {
				ID: "a",
				Transitions: []model.Transition{
					{Keywords: []string{"pain"}, NextID: "b", Impact: model.Impact{Clinical: 10}},
				},
				FallbackNextID: "a",
			},
			"b": {ID: "b"},
		},
	}
}

func recordedSession(t *testing.T) engine.Session {
	t.Helper()
	cfg := engine.DefaultScoreConfig()
	sess := engine.NewSession(testScenario())
	sess.Timer = sess.Timer.Start()
	sess, _ = sess.WithTick(cfg)
	sess, _ = sess.WithUtterance("where is the pain?", time.Now(), cfg)
	sess = sess.WithPatientReply("In my chest.", 0, time.Now(), cfg)
	return sess
}

func TestRecord(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store)

	sess := recordedSession(t)
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	a, err := r.Record(sess, started)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if a.ID == "" {
		t.Error("expected a generated attempt id")
	}
	if a.ScenarioID != "test" {
		t.Errorf("scenario = %q", a.ScenarioID)
	}
	if a.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", a.Duration)
	}
	if len(a.Transcript) != 2 {
		t.Errorf("transcript length = %d, want 2", len(a.Transcript))
	}
	if a.FinalScore != sess.Score {
		t.Errorf("score = %+v, want session score %+v", a.FinalScore, sess.Score)
	}

	stored, err := r.Attempt(a.ID)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !reflect.DeepEqual(stored.Transcript, a.Transcript) {
		t.Error("stored transcript differs from recorded one")
	}
}

// Idle sessions (no learner utterance, no expiry) are discarded.
func TestRecordDiscardsIdleSession(t *testing.T) {
	r := NewRecorder(NewMemoryStore())
	sess := engine.NewSession(testScenario())

	if _, err := r.Record(sess, time.Now()); !errors.Is(err, ErrIdleSession) {
		t.Fatalf("err = %v, want ErrIdleSession", err)
	}
}

// A session that expired without any utterance is still worth a record.
func TestRecordExpiredWithoutUtterance(t *testing.T) {
	cfg := engine.DefaultScoreConfig()
	r := NewRecorder(NewMemoryStore())

	sess := engine.NewSession(testScenario())
	sess.Timer = engine.NewTimer(1).Start()
	sess, expired := sess.WithTick(cfg)
	if !expired {
		t.Fatal("expected expiry")
	}

	a, err := r.Record(sess, time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if a.FinalScore.TimeManagement != 70 {
		t.Errorf("timeManagement = %d, want 70", a.FinalScore.TimeManagement)
	}
}

// Overriding dimension X must leave every other dimension and the
// transcript byte-for-byte unchanged.
func TestApplyMentorOverrideRoundTrip(t *testing.T) {
	r := NewRecorder(NewMemoryStore())
	a, err := r.Record(recordedSession(t), time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	before, _ := r.Attempt(a.ID)

	got, err := r.ApplyMentorOverride(a.ID, map[string]int{model.DimEmpathy: 90}, "well handled")
	if err != nil {
		t.Fatalf("ApplyMentorOverride: %v", err)
	}

	if got.FinalScore.Empathy != 90 {
		t.Errorf("empathy = %d, want 90", got.FinalScore.Empathy)
	}
	want := before.FinalScore
	want.Empathy = 90
	if got.FinalScore != want {
		t.Errorf("other dimensions changed: %+v, want %+v", got.FinalScore, want)
	}
	if !reflect.DeepEqual(got.Transcript, before.Transcript) {
		t.Error("transcript changed by override")
	}
	if got.MentorComment != "well handled" {
		t.Errorf("comment = %q", got.MentorComment)
	}

	// The merge persisted.
	stored, _ := r.Attempt(a.ID)
	if stored.FinalScore != want || stored.MentorOverride[model.DimEmpathy] != 90 {
		t.Errorf("stored attempt = %+v", stored)
	}
}

func TestApplyMentorOverrideValidation(t *testing.T) {
	r := NewRecorder(NewMemoryStore())
	a, err := r.Record(recordedSession(t), time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	t.Run("unknown dimension rejected", func(t *testing.T) {
		if _, err := r.ApplyMentorOverride(a.ID, map[string]int{"style": 50}, ""); err == nil {
			t.Error("expected error for unknown dimension")
		}
	})

	t.Run("values clamped", func(t *testing.T) {
		got, err := r.ApplyMentorOverride(a.ID, map[string]int{
			model.DimClinical:      150,
			model.DimCommunication: -20,
		}, "")
		if err != nil {
			t.Fatalf("ApplyMentorOverride: %v", err)
		}
		if got.FinalScore.Clinical != 100 {
			t.Errorf("clinical = %d, want 100", got.FinalScore.Clinical)
		}
		if got.FinalScore.Communication != 0 {
			t.Errorf("communication = %d, want 0", got.FinalScore.Communication)
		}
	})

	t.Run("missing attempt", func(t *testing.T) {
		if _, err := r.ApplyMentorOverride("nope", map[string]int{model.DimClinical: 50}, ""); !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("err = %v, want ErrAttemptNotFound", err)
		}
	})

	// Successive overrides accumulate in the stored override map.
	t.Run("overrides merge", func(t *testing.T) {
		if _, err := r.ApplyMentorOverride(a.ID, map[string]int{model.DimEmpathy: 80}, ""); err != nil {
			t.Fatalf("ApplyMentorOverride: %v", err)
		}
		stored, _ := r.Attempt(a.ID)
		if stored.MentorOverride[model.DimClinical] != 100 || stored.MentorOverride[model.DimEmpathy] != 80 {
			t.Errorf("override map = %+v", stored.MentorOverride)
		}
	})
}

// The recorder behaves identically over both store adapters.
func TestRecorderOnSQLite(t *testing.T) {
	r := NewRecorder(newTestStore(t))
	a, err := r.Record(recordedSession(t), time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := r.ApplyMentorOverride(a.ID, map[string]int{model.DimProfessionalism: 95}, "courteous"); err != nil {
		t.Fatalf("ApplyMentorOverride: %v", err)
	}
	stored, err := r.Attempt(a.ID)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if stored.FinalScore.Professionalism != 95 || stored.MentorComment != "courteous" {
		t.Errorf("stored = %+v", stored)
	}
}
