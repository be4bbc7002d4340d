package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderLearner Sender = "learner"
	SenderPatient Sender = "patient"
	SenderSystem  Sender = "system"
)

// ChatMessage is one entry in a session's append-only transcript.
type ChatMessage struct {
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// EmotionState is the simulated patient's emotional state on an ordered
// six-value scale, from EmotionAngry (lowest) to EmotionRelieved (highest).
type EmotionState int

const (
	EmotionAngry EmotionState = iota
	EmotionDistressed
	EmotionGuarded
	EmotionAnxious
	EmotionNeutral
	EmotionRelieved
)

var emotionNames = [...]string{"angry", "distressed", "guarded", "anxious", "neutral", "relieved"}

func (e EmotionState) String() string {
	if e < EmotionAngry || e > EmotionRelieved {
		return fmt.Sprintf("EmotionState(%d)", int(e))
	}
	return emotionNames[e]
}

// MarshalJSON renders the state as its scale name.
func (e EmotionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON accepts a scale name.
func (e *EmotionState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range emotionNames {
		if n == name {
			*e = EmotionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown emotion state %q", name)
}

// DifficultyTier is a derived label recomputed from current scores.
// It is display-only and never authoritative session state.
type DifficultyTier string

const (
	TierEasy     DifficultyTier = "Easy"
	TierModerate DifficultyTier = "Moderate"
	TierHard     DifficultyTier = "Hard"
)

// Score dimension names as used in scenario files, mentor overrides,
// and the HTTP API.
const (
	DimClinical        = "clinical"
	DimCommunication   = "communication"
	DimEmpathy         = "empathy"
	DimProfessionalism = "professionalism"
	DimTimeManagement  = "time_management"
)

// Dimensions lists all score dimension names in declaration order.
var Dimensions = []string{DimClinical, DimCommunication, DimEmpathy, DimProfessionalism, DimTimeManagement}

// PerformanceScore holds the five score dimensions, each in [0,100].
type PerformanceScore struct {
	Clinical        int `json:"clinical"`
	Communication   int `json:"communication"`
	Empathy         int `json:"empathy"`
	Professionalism int `json:"professionalism"`
	TimeManagement  int `json:"time_management"`
}

// DefaultScore returns the fixed starting score of a new session.
func DefaultScore() PerformanceScore {
	return PerformanceScore{
		Clinical:        60,
		Communication:   70,
		Empathy:         65,
		Professionalism: 70,
		TimeManagement:  80,
	}
}

// Dimension returns the value of a named dimension.
func (s PerformanceScore) Dimension(name string) (int, bool) {
	switch name {
	case DimClinical:
		return s.Clinical, true
	case DimCommunication:
		return s.Communication, true
	case DimEmpathy:
		return s.Empathy, true
	case DimProfessionalism:
		return s.Professionalism, true
	case DimTimeManagement:
		return s.TimeManagement, true
	}
	return 0, false
}

// SetDimension sets the value of a named dimension, reporting whether
// the name was valid.
func (s *PerformanceScore) SetDimension(name string, value int) bool {
	switch name {
	case DimClinical:
		s.Clinical = value
	case DimCommunication:
		s.Communication = value
	case DimEmpathy:
		s.Empathy = value
	case DimProfessionalism:
		s.Professionalism = value
	case DimTimeManagement:
		s.TimeManagement = value
	default:
		return false
	}
	return true
}

// Impact is a sparse set of score deltas plus an optional emotion shift,
// attached to a transition or to the fallback path. Zero fields mean
// "no change".
type Impact struct {
	Clinical        int `json:"clinical,omitempty"`
	Communication   int `json:"communication,omitempty"`
	Empathy         int `json:"empathy,omitempty"`
	Professionalism int `json:"professionalism,omitempty"`
	TimeManagement  int `json:"time_management,omitempty"`
	EmotionShift    int `json:"emotion_shift,omitempty"`
}

// IsZero reports whether the impact changes nothing.
func (i Impact) IsZero() bool {
	return i == Impact{}
}

// Persona is the simulated patient's fixed identity for a scenario.
// Immutable once the scenario is loaded.
type Persona struct {
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	Ethnicity    string `json:"ethnicity"`
	Language     string `json:"language"`
	Personality  string `json:"personality"`
	Presentation string `json:"presentation"`
}

// Summary renders the persona as a single prompt-friendly line.
func (p Persona) Summary() string {
	return fmt.Sprintf("%s, %d, %s, %s; personality: %s; presenting with: %s",
		p.Name, p.Age, p.Gender, p.Ethnicity, p.Personality, p.Presentation)
}

// Transition is a keyword-triggered edge between two scenario nodes.
// Keywords match case-insensitively as substrings of the learner's
// utterance; the first declared transition with any match wins.
type Transition struct {
	Keywords []string `json:"keywords"`
	NextID   string   `json:"next_id"`
	Impact   Impact   `json:"impact"`
}

// ScenarioNode is one step of the scripted dialogue graph.
// A node with no transitions and no fallback is terminal.
type ScenarioNode struct {
	ID               string       `json:"id"`
	Utterance        string       `json:"utterance"`
	ExpectedKeywords []string     `json:"expected_keywords,omitempty"`
	Transitions      []Transition `json:"transitions,omitempty"`
	FallbackNextID   string       `json:"fallback_next_id,omitempty"`
}

// Terminal reports whether the node accepts no further transitions.
func (n ScenarioNode) Terminal() bool {
	return len(n.Transitions) == 0 && n.FallbackNextID == ""
}

// ScenarioDefinition is a complete scenario: persona, dialogue graph,
// and reference panels. The panels are display/selection data only and
// never participate in transition logic.
type ScenarioDefinition struct {
	ID              string                  `json:"id"`
	Title           string                  `json:"title"`
	Category        string                  `json:"category"`
	Difficulty      DifficultyTier          `json:"difficulty"`
	DurationMinutes int                     `json:"duration_minutes"`
	Language        string                  `json:"language"`
	Persona         Persona                 `json:"persona"`
	Description     string                  `json:"description"`
	StartNodeID     string                  `json:"start_node"`
	Nodes           map[string]ScenarioNode `json:"nodes"`
	Vitals          map[string]string       `json:"vitals,omitempty"`
	History         []string                `json:"history,omitempty"`
	Labs            map[string]string       `json:"labs,omitempty"`
	ExamTools       []string                `json:"exam_tools,omitempty"`
	Diagnostics     []string                `json:"diagnostics,omitempty"`
	Treatments      []string                `json:"treatments,omitempty"`
}

// ScenarioAttempt is the immutable record of one finished or abandoned
// session. Only the mentor override and comment may be merged in later.
type ScenarioAttempt struct {
	ID             string           `json:"id"`
	ScenarioID     string           `json:"scenario_id"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration"`
	Transcript     []ChatMessage    `json:"transcript"`
	FinalScore     PerformanceScore `json:"final_score"`
	MentorComment  string           `json:"mentor_comment,omitempty"`
	MentorOverride map[string]int   `json:"mentor_override,omitempty"`
}
