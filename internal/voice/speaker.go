package voice

import (
	"context"
	"sync"
)

// Speaker turns a Synthesizer into a playback port: each Speak call
// renders the line and hands the audio to the sink (typically the
// HTTP layer streaming it to the browser). Stop cancels an in-flight
// synthesis so a scenario switch cuts the patient off mid-sentence.
type Speaker struct {
	synth   Synthesizer
	voiceID string
	sink    func(audio []byte)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSpeaker creates a Speaker for the given voice. sink receives the
// synthesized audio for each spoken line.
func NewSpeaker(synth Synthesizer, voiceID string, sink func(audio []byte)) *Speaker {
	return &Speaker{synth: synth, voiceID: voiceID, sink: sink}
}

// Speak synthesizes the line and delivers it to the sink. It returns
// once delivery is done or the speech was stopped.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	audio, err := s.synth.Synthesize(ctx, text, s.voiceID)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.sink != nil {
		s.sink(audio)
	}
	return nil
}

// Stop aborts the in-flight synthesis, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
