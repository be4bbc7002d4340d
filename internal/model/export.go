package model

import "time"

// AttemptExport is the top-level JSON structure for attempt export.
type AttemptExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Results    []AttemptResult `json:"results"`
}

// AttemptResult holds one attempt's data for export.
type AttemptResult struct {
	AttemptID       string           `json:"attempt_id"`
	ScenarioID      string           `json:"scenario_id"`
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds int              `json:"duration_seconds"`
	FinalScore      PerformanceScore `json:"final_score"`
	MentorComment   string           `json:"mentor_comment,omitempty"`
	MentorOverride  map[string]int   `json:"mentor_override,omitempty"`
	Conversation    []ExportMsg      `json:"conversation"`
}

// ExportMsg is a single transcript message in an export.
type ExportMsg struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// ExportResult converts a stored attempt into its export form.
func ExportResult(a ScenarioAttempt) AttemptResult {
	conv := make([]ExportMsg, 0, len(a.Transcript))
	for _, m := range a.Transcript {
		conv = append(conv, ExportMsg{Sender: string(m.Sender), Text: m.Text, At: m.At})
	}
	return AttemptResult{
		AttemptID:       a.ID,
		ScenarioID:      a.ScenarioID,
		StartedAt:       a.StartedAt,
		DurationSeconds: int(a.Duration.Seconds()),
		FinalScore:      a.FinalScore,
		MentorComment:   a.MentorComment,
		MentorOverride:  a.MentorOverride,
		Conversation:    conv,
	}
}
