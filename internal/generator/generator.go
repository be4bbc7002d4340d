// Package generator defines the response-generator port: the contract
// toward an external text-generation service that voices the patient.
// The engine treats the service as best-effort; Resilient guarantees a
// deterministic reply on any failure, so the rest of the session
// behaves identically whether the remote call succeeds or not.
package generator

import (
	"context"

	"github.com/osceprep/patientsim/internal/model"
)

// Request carries everything the generator needs for one patient reply.
type Request struct {
	PersonaSummary      string
	ScenarioDescription string
	Emotion             model.EmotionState
	Language            string
	Utterance           string   // last learner utterance
	ScriptedLine        string   // the node's scripted patient line, used as grounding
	Transcript          []string // prior transcript as "sender: text" lines
}

// Reply is the generator's output.
type Reply struct {
	Text               string   `json:"text"`
	EmotionShift       int      `json:"emotion_shift"`
	SuggestedFollowUps []string `json:"suggested_follow_ups"`
}

// Generator produces one patient reply for a request.
type Generator interface {
	Reply(ctx context.Context, req Request) (*Reply, error)
}
