package generator

import (
	"context"

	"github.com/osceprep/patientsim/internal/i18n"
	"github.com/osceprep/patientsim/internal/model"
)

// Fallback is the deterministic canned-response generator. It is
// language- and emotion-aware, always succeeds, and declares no
// emotion shift, so the session behaves the same end to end whether
// the remote generator answered or not.
type Fallback struct{}

// NewFallback creates the deterministic fallback generator.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Reply returns the canned line for the request's language and emotion
// band. It never returns an error.
func (f *Fallback) Reply(_ context.Context, req Request) (*Reply, error) {
	var msgID string
	switch {
	case req.Emotion <= model.EmotionDistressed:
		msgID = "FallbackDistressed"
	case req.Emotion <= model.EmotionAnxious:
		msgID = "FallbackAnxious"
	default:
		msgID = "FallbackNeutral"
	}

	return &Reply{
		Text:         i18n.Tl(req.Language, msgID),
		EmotionShift: 0,
		SuggestedFollowUps: []string{
			i18n.Tl(req.Language, "FallbackFollowUpHistory"),
			i18n.Tl(req.Language, "FallbackFollowUpExam"),
		},
	}, nil
}
