// Package session orchestrates one live attempt. A single goroutine
// consumes a command queue; the 1 Hz timer tick, the asynchronous
// generator reply, and voice events are all serialized onto that queue,
// which preserves the strict per-turn ordering: transition, then
// score/emotion update, then generator reply, then transcript append —
// never interleaved across two utterances.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/osceprep/patientsim/internal/attempt"
	"github.com/osceprep/patientsim/internal/engine"
	"github.com/osceprep/patientsim/internal/generator"
	"github.com/osceprep/patientsim/internal/i18n"
	"github.com/osceprep/patientsim/internal/model"
)

var (
	// ErrThinking is returned while a generator call is in flight; a
	// second utterance must wait for the patient's reply.
	ErrThinking = errors.New("patient reply in progress")
	// ErrFinished is returned for input after the session was finished.
	ErrFinished = errors.New("session already finished")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Listener controls the voice-recognition side effect (start/stop
// listening). Implementations signal the client; the controller itself
// additionally refuses voice input while the patient is speaking.
type Listener interface {
	Start() error
	Stop() error
}

// Synthesizer voices the patient's replies. Speak blocks until playback
// is done (or ctx is cancelled); Stop aborts any in-flight speech.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

type nopListener struct{}

func (nopListener) Start() error { return nil }
func (nopListener) Stop() error  { return nil }

type nopSynthesizer struct{}

func (nopSynthesizer) Speak(context.Context, string) error { return nil }
func (nopSynthesizer) Stop()                               {}

// Config holds controller dependencies and knobs.
type Config struct {
	Score engine.ScoreConfig

	// Ticks overrides the internal 1 s ticker (used by tests). When
	// nil the controller runs its own time.Ticker.
	Ticks <-chan time.Time

	Listener    Listener
	Synthesizer Synthesizer

	Now func() time.Time
}

// Snapshot is a read-only view of the live session for rendering.
type Snapshot struct {
	ID        string
	Session   engine.Session
	Thinking  bool
	Listening bool
	Speaking  bool
	FollowUps []string
	StartedAt time.Time
}

// Controller owns the live state of one attempt. All mutation happens
// on its run loop; public methods enqueue commands and wait.
type Controller struct {
	id  string
	gen generator.Generator
	rec *attempt.Recorder
	cfg Config

	cmds chan command
	quit chan struct{}
}

type command interface{ isCommand() }

type cmdUtterance struct {
	text  string
	voice bool
	reply chan error
}

type cmdGeneratorDone struct {
	turn int
	rep  *generator.Reply
}

type cmdSpeechDone struct{ turn int }

type cmdTimerCtl struct {
	action string // "start", "pause"
	reply  chan error
}

type cmdRepeat struct{ reply chan error }

type cmdFinish struct {
	reply chan finishResult
}

type finishResult struct {
	attempt *model.ScenarioAttempt
	err     error
}

type cmdSwitch struct {
	def   *model.ScenarioDefinition
	reply chan error
}

type cmdListen struct {
	on    bool
	reply chan error
}

type cmdSnapshot struct{ reply chan Snapshot }

func (cmdUtterance) isCommand()     {}
func (cmdGeneratorDone) isCommand() {}
func (cmdSpeechDone) isCommand()    {}
func (cmdTimerCtl) isCommand()      {}
func (cmdRepeat) isCommand()        {}
func (cmdFinish) isCommand()        {}
func (cmdSwitch) isCommand()        {}
func (cmdListen) isCommand()        {}
func (cmdSnapshot) isCommand()      {}

// New creates a controller for the scenario and starts its run loop.
// The timer stays Idle until Start is called.
func New(def *model.ScenarioDefinition, gen generator.Generator, rec *attempt.Recorder, cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Listener == nil {
		cfg.Listener = nopListener{}
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = nopSynthesizer{}
	}
	if cfg.Score.LengthDivisor == 0 {
		cfg.Score = engine.DefaultScoreConfig()
	}

	c := &Controller{
		id:   uuid.NewString(),
		gen:  gen,
		rec:  rec,
		cfg:  cfg,
		cmds: make(chan command),
		quit: make(chan struct{}),
	}
	go c.run(engine.NewSession(def))
	return c
}

// ID returns the controller's session id.
func (c *Controller) ID() string { return c.id }

func (c *Controller) send(cmd command) error {
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// Submit feeds one learner utterance into the session. It returns
// ErrThinking while a generator call is in flight.
func (c *Controller) Submit(text string) error {
	reply := make(chan error, 1)
	if err := c.send(cmdUtterance{text: text, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// VoiceTranscript feeds a final voice-recognition transcript. Spoken
// commands (pause, resume, repeat, clear) are intercepted and consumed;
// anything else is submitted as a clinical utterance. Input arriving
// while the patient's reply is being spoken is dropped so the
// synthesized voice cannot be captured as new input.
func (c *Controller) VoiceTranscript(text string) error {
	reply := make(chan error, 1)
	if err := c.send(cmdUtterance{text: text, voice: true, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Start activates the session timer (no-op once expired).
func (c *Controller) Start() error {
	reply := make(chan error, 1)
	if err := c.send(cmdTimerCtl{action: "start", reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Pause pauses the session timer without resetting the remaining time.
func (c *Controller) Pause() error {
	reply := make(chan error, 1)
	if err := c.send(cmdTimerCtl{action: "pause", reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// RepeatLast re-speaks the most recent patient line.
func (c *Controller) RepeatLast() error {
	reply := make(chan error, 1)
	if err := c.send(cmdRepeat{reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// SetListening starts or stops voice recognition.
func (c *Controller) SetListening(on bool) error {
	reply := make(chan error, 1)
	if err := c.send(cmdListen{on: on, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Finish records the session as an attempt and seals the controller.
// Idle sessions are discarded and return attempt.ErrIdleSession.
func (c *Controller) Finish() (*model.ScenarioAttempt, error) {
	reply := make(chan finishResult, 1)
	if err := c.send(cmdFinish{reply: reply}); err != nil {
		return nil, err
	}
	res := <-reply
	return res.attempt, res.err
}

// SwitchScenario discards the unfinished session and restarts on a new
// scenario: the timer is reset to the new duration (Idle), in-flight
// speech and recognition are stopped, and a stale generator reply, if
// any, is dropped when it lands.
func (c *Controller) SwitchScenario(def *model.ScenarioDefinition) error {
	reply := make(chan error, 1)
	if err := c.send(cmdSwitch{def: def, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// State returns a snapshot of the live session.
func (c *Controller) State() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.send(cmdSnapshot{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return <-reply, nil
}

// Close stops the run loop. The session is discarded, not recorded.
func (c *Controller) Close() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

// loopState is the run loop's private state; it never escapes except
// through snapshots.
type loopState struct {
	sess      engine.Session
	thinking  bool
	speaking  bool
	listening bool
	finished  bool
	turn      int // incremented per scenario to drop stale async results
	followUps []string
	startedAt time.Time
}

func (c *Controller) run(initial engine.Session) {
	st := &loopState{sess: initial}

	ticks := c.cfg.Ticks
	if ticks == nil {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-c.quit:
			c.cfg.Synthesizer.Stop()
			return
		case <-ticks:
			c.handleTick(st)
		case cmd := <-c.cmds:
			c.handle(st, cmd)
		}
	}
}

func (c *Controller) handle(st *loopState, cmd command) {
	switch cmd := cmd.(type) {
	case cmdUtterance:
		cmd.reply <- c.handleUtterance(st, cmd)

	case cmdGeneratorDone:
		if cmd.turn != st.turn {
			slog.Debug("dropping stale generator reply", "session", c.id)
			return
		}
		c.handleGeneratorDone(st, cmd.rep)

	case cmdSpeechDone:
		st.speaking = false
		if cmd.turn != st.turn {
			return
		}
		// Recognition may resume now that the patient stopped talking.
		if st.listening {
			if err := c.cfg.Listener.Start(); err != nil {
				slog.Warn("resume listening", "error", err)
			}
		}

	case cmdTimerCtl:
		if st.finished {
			cmd.reply <- ErrFinished
			return
		}
		switch cmd.action {
		case "start":
			if st.startedAt.IsZero() {
				st.startedAt = c.cfg.Now()
			}
			st.sess.Timer = st.sess.Timer.Start()
		case "pause":
			st.sess.Timer = st.sess.Timer.Pause()
		}
		cmd.reply <- nil

	case cmdRepeat:
		if st.finished {
			cmd.reply <- ErrFinished
			return
		}
		c.speak(st, st.sess.LastPatientLine())
		cmd.reply <- nil

	case cmdListen:
		st.listening = cmd.on
		var err error
		if cmd.on && !st.speaking {
			err = c.cfg.Listener.Start()
		} else if !cmd.on {
			err = c.cfg.Listener.Stop()
		}
		cmd.reply <- err

	case cmdFinish:
		if st.finished {
			cmd.reply <- finishResult{err: ErrFinished}
			return
		}
		a, err := c.rec.Record(st.sess, st.startedAt)
		if err == nil || errors.Is(err, attempt.ErrIdleSession) {
			st.finished = true
			c.cfg.Synthesizer.Stop()
			st.listening = false
			if lerr := c.cfg.Listener.Stop(); lerr != nil {
				slog.Warn("stop listening", "error", lerr)
			}
		}
		cmd.reply <- finishResult{attempt: a, err: err}

	case cmdSwitch:
		st.turn++
		c.cfg.Synthesizer.Stop()
		st.speaking = false
		st.listening = false
		if err := c.cfg.Listener.Stop(); err != nil {
			slog.Warn("stop listening", "error", err)
		}
		st.sess = engine.NewSession(cmd.def)
		st.thinking = false
		st.finished = false
		st.followUps = nil
		st.startedAt = time.Time{}
		cmd.reply <- nil

	case cmdSnapshot:
		cmd.reply <- Snapshot{
			ID:        c.id,
			Session:   st.sess,
			Thinking:  st.thinking,
			Listening: st.listening,
			Speaking:  st.speaking,
			FollowUps: append([]string(nil), st.followUps...),
			StartedAt: st.startedAt,
		}
	}
}

func (c *Controller) handleTick(st *loopState) {
	if st.finished {
		return
	}
	sess, expired := st.sess.WithTick(c.cfg.Score)
	st.sess = sess
	if expired {
		note := i18n.Tl(st.sess.Scenario.Language, "TimeExpired")
		st.sess = st.sess.WithSystemNote(note, c.cfg.Now())
		slog.Info("session timer expired", "session", c.id, "scenario", st.sess.Scenario.ID)
	}
}

func (c *Controller) handleUtterance(st *loopState, cmd cmdUtterance) error {
	if st.finished {
		return ErrFinished
	}
	if cmd.voice {
		if st.speaking {
			// The synthesized voice must never round-trip as input.
			slog.Debug("dropping voice input while speaking", "session", c.id)
			return nil
		}
		if action, ok := parseVoiceCommand(st.sess.Scenario.Language, cmd.text); ok {
			return c.applyVoiceAction(st, action)
		}
	}
	if st.thinking {
		return ErrThinking
	}

	now := c.cfg.Now()
	sess, eval := st.sess.WithUtterance(cmd.text, now, c.cfg.Score)
	st.sess = sess

	if !eval.Matched && !eval.Terminal {
		slog.Debug("no transition matched, took fallback",
			"session", c.id, "node", st.sess.NodeID, "utterance", cmd.text)
	}
	if eval.Terminal {
		// Terminal nodes are a no-op: no impact, no generated reply.
		return nil
	}

	st.thinking = true
	turn := st.turn
	req := generator.Request{
		PersonaSummary:      st.sess.Scenario.Persona.Summary(),
		ScenarioDescription: st.sess.Scenario.Description,
		Emotion:             st.sess.Emotion,
		Language:            st.sess.Scenario.Language,
		Utterance:           cmd.text,
		ScriptedLine:        st.sess.CurrentNode().Utterance,
		Transcript:          st.sess.TranscriptLines(),
	}
	go func() {
		rep, err := c.gen.Reply(context.Background(), req)
		if err != nil {
			// Resilient generators never error; a bare generator that
			// does still must not wedge the thinking gate.
			slog.Error("generator error", "session", c.id, "error", err)
			rep = &generator.Reply{Text: req.ScriptedLine}
		}
		select {
		case c.cmds <- cmdGeneratorDone{turn: turn, rep: rep}:
		case <-c.quit:
		}
	}()
	return nil
}

func (c *Controller) handleGeneratorDone(st *loopState, rep *generator.Reply) {
	st.thinking = false
	st.sess = st.sess.WithPatientReply(rep.Text, rep.EmotionShift, c.cfg.Now(), c.cfg.Score)
	st.followUps = rep.SuggestedFollowUps
	c.speak(st, rep.Text)
}

// speak voices a line, stopping recognition first so the reply is not
// captured as input; cmdSpeechDone resumes it.
func (c *Controller) speak(st *loopState, text string) {
	if text == "" {
		return
	}
	if st.listening {
		if err := c.cfg.Listener.Stop(); err != nil {
			slog.Warn("stop listening before speech", "error", err)
		}
	}
	st.speaking = true
	turn := st.turn
	go func() {
		if err := c.cfg.Synthesizer.Speak(context.Background(), text); err != nil {
			slog.Warn("speech synthesis failed", "session", c.id, "error", err)
		}
		select {
		case c.cmds <- cmdSpeechDone{turn: turn}:
		case <-c.quit:
		}
	}()
}

func (c *Controller) applyVoiceAction(st *loopState, action voiceAction) error {
	switch action {
	case voicePause:
		st.sess.Timer = st.sess.Timer.Pause()
	case voiceResume:
		if st.startedAt.IsZero() {
			st.startedAt = c.cfg.Now()
		}
		st.sess.Timer = st.sess.Timer.Start()
	case voiceRepeat:
		c.speak(st, st.sess.LastPatientLine())
	case voiceClear:
		// Pending interim input lives client-side; consuming the
		// command here keeps it out of the clinical transcript.
	}
	return nil
}
