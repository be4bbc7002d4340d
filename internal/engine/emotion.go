package engine

import "github.com/osceprep/patientsim/internal/model"

// ShiftEmotion moves the state along the ordered scale by delta,
// clamped to the scale bounds.
//
// Within a single turn two independent shifts can arrive: one declared
// by the matched transition's impact and one declared by the response
// generator's reply. They are applied sequentially in that order, each
// clamped on its own, never summed and clamped once. Near the scale
// boundaries the two policies differ (e.g. at relieved, +1 then -1
// yields neutral, while a summed 0 would stay relieved), so the caller
// must not collapse the two calls.
func ShiftEmotion(current model.EmotionState, delta int) model.EmotionState {
	next := current + model.EmotionState(delta)
	if next < model.EmotionAngry {
		return model.EmotionAngry
	}
	if next > model.EmotionRelieved {
		return model.EmotionRelieved
	}
	return next
}
