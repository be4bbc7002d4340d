package session

import "strings"

// voiceAction is a spoken control command recognized before any
// clinical evaluation.
type voiceAction int

const (
	voicePause voiceAction = iota
	voiceResume
	voiceRepeat
	voiceClear
)

// Spoken command vocabulary per scenario language. Matching is exact on
// the normalized transcript, so "the pain started after a pause" is
// never swallowed as a command.
var voiceCommands = map[string]map[string]voiceAction{
	"en": {
		"pause":    voicePause,
		"resume":   voiceResume,
		"start":    voiceResume,
		"continue": voiceResume,
		"repeat":   voiceRepeat,
		"clear":    voiceClear,
	},
	"id": {
		"jeda":     voicePause,
		"berhenti": voicePause,
		"lanjut":   voiceResume,
		"mulai":    voiceResume,
		"ulangi":   voiceRepeat,
		"hapus":    voiceClear,
	},
}

func parseVoiceCommand(lang, transcript string) (voiceAction, bool) {
	vocab, ok := voiceCommands[lang]
	if !ok {
		vocab = voiceCommands["en"]
	}
	norm := strings.ToLower(strings.TrimSpace(transcript))
	norm = strings.TrimRight(norm, ".!?,")
	action, ok := vocab[norm]
	return action, ok
}
