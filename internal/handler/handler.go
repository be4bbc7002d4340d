// Package handler exposes the JSON API: session lifecycle, utterances,
// voice transcription, and the mentor review surface.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/osceprep/patientsim/internal/attempt"
	"github.com/osceprep/patientsim/internal/generator"
	"github.com/osceprep/patientsim/internal/model"
	"github.com/osceprep/patientsim/internal/scenario"
	"github.com/osceprep/patientsim/internal/session"
	"github.com/osceprep/patientsim/internal/voice"
)

// MentorPasswordKey is the metadata key holding the bcrypt hash that
// guards the review endpoints.
const MentorPasswordKey = "mentor_password_hash"

// Config holds the optional voice clients. Either may be nil; the
// matching endpoints then answer 501.
type Config struct {
	Transcriber voice.Transcriber
	TTS         voice.Synthesizer
	VoiceID     string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	catalog  *scenario.Catalog
	gen      generator.Generator
	recorder *attempt.Recorder
	store    attempt.Store
	voice    Config

	mu       sync.Mutex
	sessions map[string]*session.Controller
}

// New creates a new Handler.
func New(c *scenario.Catalog, g generator.Generator, r *attempt.Recorder, s attempt.Store, cfg Config) *Handler {
	return &Handler{
		catalog:  c,
		gen:      g,
		recorder: r,
		store:    s,
		voice:    cfg,
		sessions: make(map[string]*session.Controller),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/scenarios", h.handleListScenarios)

	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/sessions/{sessionID}/utterance", h.handleUtterance)
	r.Post("/sessions/{sessionID}/transcribe", h.handleTranscribe)
	r.Get("/sessions/{sessionID}/speech", h.handleSpeech)
	r.Post("/sessions/{sessionID}/pause", h.handlePause)
	r.Post("/sessions/{sessionID}/resume", h.handleResume)
	r.Post("/sessions/{sessionID}/repeat", h.handleRepeat)
	r.Post("/sessions/{sessionID}/scenario", h.handleSwitchScenario)
	r.Post("/sessions/{sessionID}/finish", h.handleFinish)

	r.Get("/attempts", h.handleListAttempts)
	r.Get("/attempts/{attemptID}", h.handleGetAttempt)
	r.Post("/attempts/{attemptID}/override", h.handleOverride)
}

// sessionView is the wire shape of a live session.
type sessionView struct {
	ID         string                 `json:"id"`
	ScenarioID string                 `json:"scenario_id"`
	Persona    model.Persona          `json:"persona"`
	PatientSay string                 `json:"patient_say"`
	Transcript []model.ChatMessage    `json:"transcript"`
	Score      model.PerformanceScore `json:"score"`
	Emotion    model.EmotionState     `json:"emotion"`
	Tier       model.DifficultyTier   `json:"tier"`
	TimerState string                 `json:"timer_state"`
	Remaining  int                    `json:"remaining_seconds"`
	Thinking   bool                   `json:"thinking"`
	Listening  bool                   `json:"listening"`
	Speaking   bool                   `json:"speaking"`
	FollowUps  []string               `json:"follow_ups,omitempty"`
	Vitals     map[string]string      `json:"vitals,omitempty"`
	ExamTools  []string               `json:"exam_tools,omitempty"`
}

func viewOf(snap session.Snapshot) sessionView {
	sess := snap.Session
	return sessionView{
		ID:         snap.ID,
		ScenarioID: sess.Scenario.ID,
		Persona:    sess.Scenario.Persona,
		PatientSay: sess.LastPatientLine(),
		Transcript: sess.Transcript,
		Score:      sess.Score,
		Emotion:    sess.Emotion,
		Tier:       sess.Tier,
		TimerState: sess.Timer.State.String(),
		Remaining:  sess.Timer.Remaining,
		Thinking:   snap.Thinking,
		Listening:  snap.Listening,
		Speaking:   snap.Speaking,
		FollowUps:  snap.FollowUps,
		Vitals:     sess.Scenario.Vitals,
		ExamTools:  sess.Scenario.ExamTools,
	}
}

func (h *Handler) controller(id string) *session.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.List())
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	def, err := h.catalog.Get(req.ScenarioID)
	if err != nil {
		http.Error(w, "unknown scenario", http.StatusNotFound)
		return
	}

	c := session.New(def, h.gen, h.recorder, session.Config{})
	if err := c.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.sessions[c.ID()] = c
	h.mu.Unlock()

	snap, err := c.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("session created", "session", c.ID(), "scenario", req.ScenarioID)
	writeJSON(w, http.StatusCreated, viewOf(snap))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c := h.controller(chi.URLParam(r, "sessionID"))
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	snap, err := c.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusGone)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(snap))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	h.mu.Lock()
	c := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	c.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUtterance(w http.ResponseWriter, r *http.Request) {
	c := h.controller(chi.URLParam(r, "sessionID"))
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "utterance text required", http.StatusBadRequest)
		return
	}

	if err := c.Submit(req.Text); err != nil {
		switch {
		case errors.Is(err, session.ErrThinking):
			http.Error(w, "patient reply in progress", http.StatusConflict)
		case errors.Is(err, session.ErrFinished):
			http.Error(w, "session already finished", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	snap, err := c.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(snap))
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	c := h.controller(chi.URLParam(r, "sessionID"))
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if h.voice.Transcriber == nil {
		http.Error(w, "voice input not configured", http.StatusNotImplemented)
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	text, err := h.voice.Transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		slog.Error("transcription failed", "error", err)
		http.Error(w, "transcription failed", http.StatusBadGateway)
		return
	}

	if err := c.VoiceTranscript(text); err != nil {
		if errors.Is(err, session.ErrThinking) {
			http.Error(w, "patient reply in progress", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"text": text})
}

// handleSpeech voices the patient's most recent line on demand; the
// client plays the returned audio.
func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	c := h.controller(chi.URLParam(r, "sessionID"))
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if h.voice.TTS == nil {
		http.Error(w, "voice output not configured", http.StatusNotImplemented)
		return
	}

	snap, err := c.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	line := snap.Session.LastPatientLine()
	if line == "" {
		http.Error(w, "nothing to speak", http.StatusNotFound)
		return
	}

	audio, err := h.voice.TTS.Synthesize(r.Context(), line, h.voice.VoiceID)
	if err != nil {
		slog.Error("speech synthesis failed", "error", err)
		http.Error(w, "speech synthesis failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := w.Write(audio); err != nil {
		slog.Error("write audio response", "error", err)
	}
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.timerAction(w, r, func(c *session.Controller) error { return c.Pause() })
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.timerAction(w, r, func(c *session.Controller) error { return c.Start() })
}

func (h *Handler) handleRepeat(w http.ResponseWriter, r *http.Request) {
	h.timerAction(w, r, func(c *session.Controller) error { return c.RepeatLast() })
}

func (h *Handler) timerAction(w http.ResponseWriter, r *http.Request, action func(*session.Controller) error) {
	c := h.controller(chi.URLParam(r, "sessionID"))
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := action(c); err != nil {
		if errors.Is(err, session.ErrFinished) {
			http.Error(w, "session already finished", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	snap, err := c.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(snap))
}

func (h *Handler) handleSwitchScenario(w http.ResponseWriter, r *http.Request) {
	c := h.controller(chi.URLParam(r, "sessionID"))
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	def, err := h.catalog.Get(req.ScenarioID)
	if err != nil {
		http.Error(w, "unknown scenario", http.StatusNotFound)
		return
	}

	if err := c.SwitchScenario(def); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := c.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	snap, err := c.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("session switched scenario", "session", c.ID(), "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, viewOf(snap))
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	c := h.controller(id)
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	a, err := c.Finish()
	switch {
	case errors.Is(err, attempt.ErrIdleSession):
		h.removeSession(id)
		writeJSON(w, http.StatusOK, map[string]bool{"discarded": true})
		return
	case errors.Is(err, session.ErrFinished):
		http.Error(w, "session already finished", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.removeSession(id)
	slog.Info("session finished", "session", id, "attempt", a.ID)
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) removeSession(id string) {
	h.mu.Lock()
	c := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.recorder.Attempts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.recorder.Attempt(chi.URLParam(r, "attemptID"))
	if err != nil {
		if errors.Is(err, attempt.ErrAttemptNotFound) {
			http.Error(w, "attempt not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	if !h.mentorAuthorized(r) {
		http.Error(w, "mentor password required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Override map[string]int `json:"override"`
		Comment  string         `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Override) == 0 {
		http.Error(w, "override map required", http.StatusBadRequest)
		return
	}

	a, err := h.recorder.ApplyMentorOverride(chi.URLParam(r, "attemptID"), req.Override, req.Comment)
	if err != nil {
		if errors.Is(err, attempt.ErrAttemptNotFound) {
			http.Error(w, "attempt not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) mentorAuthorized(r *http.Request) bool {
	hash, err := h.store.GetMetadata(MentorPasswordKey)
	if err != nil || hash == "" {
		slog.Error("mentor password hash unavailable", "error", err)
		return false
	}
	password := r.Header.Get("X-Mentor-Password")
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
