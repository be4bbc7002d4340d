package engine

import (
	"time"

	"github.com/osceprep/patientsim/internal/model"
)

// Session is the engine's view of one live attempt: current node,
// scores, emotion, timer, and transcript. It is a value; every step
// function returns a new Session and leaves its receiver untouched, so
// the controller can treat state transitions as pure reductions.
type Session struct {
	Scenario   *model.ScenarioDefinition
	NodeID     string
	Score      model.PerformanceScore
	Emotion    model.EmotionState
	Timer      Timer
	Transcript []model.ChatMessage
	Tier       model.DifficultyTier
}

// NewSession returns the initial state for a scenario: start node,
// default scores, neutral emotion, and an idle timer at the scenario's
// configured duration.
func NewSession(def *model.ScenarioDefinition) Session {
	score := model.DefaultScore()
	return Session{
		Scenario: def,
		NodeID:   def.StartNodeID,
		Score:    score,
		Emotion:  model.EmotionNeutral,
		Timer:    NewTimer(def.DurationMinutes * 60),
		Tier:     Tier(score, DefaultScoreConfig().Tiers),
	}
}

// WithUtterance applies one learner utterance: appends it to the
// transcript, resolves the transition, applies the score impact plus
// keyword bonuses, and applies the transition-declared emotion shift.
// The generator-declared shift is applied later by WithPatientReply;
// see ShiftEmotion for the ordering contract.
func (s Session) WithUtterance(text string, at time.Time, cfg ScoreConfig) (Session, Evaluation) {
	s.Transcript = appendMsg(s.Transcript, model.ChatMessage{Sender: model.SenderLearner, Text: text, At: at})

	eval := Evaluate(s.Scenario, s.NodeID, text, cfg.UnproductiveImpact)
	if eval.Terminal {
		return s, eval
	}

	s.NodeID = eval.NextID
	s.Score = ApplyImpact(s.Score, eval.Impact, text, cfg)
	if eval.Impact.EmotionShift != 0 {
		s.Emotion = ShiftEmotion(s.Emotion, eval.Impact.EmotionShift)
	}
	s.Tier = Tier(s.Score, cfg.Tiers)
	return s, eval
}

// WithPatientReply appends the patient's reply and applies the
// generator-declared emotion shift.
func (s Session) WithPatientReply(text string, emotionShift int, at time.Time, cfg ScoreConfig) Session {
	s.Transcript = appendMsg(s.Transcript, model.ChatMessage{Sender: model.SenderPatient, Text: text, At: at})
	if emotionShift != 0 {
		s.Emotion = ShiftEmotion(s.Emotion, emotionShift)
	}
	return s
}

// WithSystemNote appends a system message to the transcript.
func (s Session) WithSystemNote(text string, at time.Time) Session {
	s.Transcript = appendMsg(s.Transcript, model.ChatMessage{Sender: model.SenderSystem, Text: text, At: at})
	return s
}

// WithTick advances the timer one second. On the expiry edge the
// one-time timeManagement penalty is applied and true is returned.
func (s Session) WithTick(cfg ScoreConfig) (Session, bool) {
	timer, expired := s.Timer.Tick()
	s.Timer = timer
	if expired {
		s.Score = ApplyExpiryPenalty(s.Score, cfg)
		s.Tier = Tier(s.Score, cfg.Tiers)
	}
	return s, expired
}

// CurrentNode returns the active scenario node.
func (s Session) CurrentNode() model.ScenarioNode {
	return s.Scenario.Nodes[s.NodeID]
}

// LearnerTurns counts learner messages in the transcript.
func (s Session) LearnerTurns() int {
	n := 0
	for _, m := range s.Transcript {
		if m.Sender == model.SenderLearner {
			n++
		}
	}
	return n
}

// LastPatientLine returns the most recent patient message, or the
// current node's scripted utterance if the patient has not spoken yet.
func (s Session) LastPatientLine() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Sender == model.SenderPatient {
			return s.Transcript[i].Text
		}
	}
	return s.CurrentNode().Utterance
}

// TranscriptLines flattens the transcript into "sender: text" lines for
// the response generator contract.
func (s Session) TranscriptLines() []string {
	lines := make([]string, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		lines = append(lines, string(m.Sender)+": "+m.Text)
	}
	return lines
}

// appendMsg copies before appending so two Sessions never share a
// transcript backing array.
func appendMsg(msgs []model.ChatMessage, m model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, m)
}
