package generator

import (
	"fmt"
	"strings"
)

func buildSystemPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are role-playing a patient in a clinical exam rehearsal. Stay in character at all times.\n\n")
	sb.WriteString("PATIENT: " + req.PersonaSummary + "\n\n")
	if req.ScenarioDescription != "" {
		sb.WriteString("SCENARIO: " + req.ScenarioDescription + "\n\n")
	}
	sb.WriteString("CURRENT EMOTIONAL STATE: " + req.Emotion.String() + "\n")
	sb.WriteString("REPLY LANGUAGE: " + req.Language + "\n\n")

	if req.ScriptedLine != "" {
		sb.WriteString("The script expects roughly this content for your next line (rephrase naturally, do not contradict it):\n")
		sb.WriteString(req.ScriptedLine + "\n\n")
	}

	if len(req.Transcript) > 0 {
		sb.WriteString("CONVERSATION SO FAR:\n")
		for _, line := range req.Transcript {
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Answer the doctor's last utterance as this patient would, in one to three sentences.\n")
	sb.WriteString("- Reflect the emotional state in tone and word choice.\n")
	sb.WriteString("- Report how the doctor's utterance moved your emotion as an integer between -2 and 2.\n")
	sb.WriteString("- Suggest up to two short follow-up prompts the doctor could ask next.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"text": "<patient reply>", "emotion_shift": <-2..2>, "suggested_follow_ups": ["<prompt>", "..."]}`)
	sb.WriteString("\n")

	return sb.String()
}

func buildUserPrompt(req Request) string {
	return fmt.Sprintf("doctor: %s", req.Utterance)
}
