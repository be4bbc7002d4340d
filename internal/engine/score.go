package engine

import (
	"strings"

	"github.com/osceprep/patientsim/internal/model"
)

// TierThresholds configures the derived difficulty tier. The tier is
// computed from clinical+empathy, a sum bounded to [0,200] by the
// per-dimension clamps, so the defaults of 160/120 split that range;
// scenario-authoring policy may tune them.
type TierThresholds struct {
	Hard int // sum strictly above this is Hard
	Easy int // sum strictly below this is Easy
}

// ScoreConfig holds the scoring rules: keyword-category term lists,
// bonus sizes, the unproductive-utterance impact, and tier thresholds.
type ScoreConfig struct {
	EmpathyTerms         []string
	ProfessionalismTerms []string
	ClinicalTerms        []string

	CategoryBonus  int // added once per matching category
	LengthDivisor  int // communication bonus = len(utterance)/LengthDivisor
	LengthBonusCap int

	// UnproductiveImpact is applied when no transition keyword matched.
	UnproductiveImpact model.Impact

	// ExpiryPenalty is subtracted from timeManagement once when the
	// session timer expires.
	ExpiryPenalty int

	Tiers TierThresholds
}

// DefaultScoreConfig returns the stock scoring rules.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		EmpathyTerms: []string{
			"i understand", "i'm sorry", "i am sorry", "that must be",
			"don't worry", "saya mengerti", "maaf", "tenang", "jangan khawatir",
		},
		ProfessionalismTerms: []string{
			"may i", "with your permission", "consent", "confidential",
			"izin", "permisi", "persetujuan",
		},
		ClinicalTerms: []string{
			"blood pressure", "auscultat", "palpat", "ecg", "ekg",
			"tekanan darah", "riwayat penyakit", "alergi", "diagnos",
		},
		CategoryBonus:  2,
		LengthDivisor:  40,
		LengthBonusCap: 3,
		UnproductiveImpact: model.Impact{
			Clinical:      -3,
			Communication: -2,
		},
		ExpiryPenalty: 10,
		Tiers:         TierThresholds{Hard: 160, Easy: 120},
	}
}

// ApplyImpact produces the new score after one learner utterance: the
// transition impact plus the keyword-category bonuses, each dimension
// clamped to [0,100]. The bonuses are computed from the utterance text
// alone and stack with the transition impact.
func ApplyImpact(score model.PerformanceScore, impact model.Impact, utterance string, cfg ScoreConfig) model.PerformanceScore {
	lower := strings.ToLower(utterance)

	empathyBonus := 0
	if containsAny(lower, cfg.EmpathyTerms) {
		empathyBonus = cfg.CategoryBonus
	}
	professionalismBonus := 0
	if containsAny(lower, cfg.ProfessionalismTerms) {
		professionalismBonus = cfg.CategoryBonus
	}
	clinicalBonus := 0
	if containsAny(lower, cfg.ClinicalTerms) {
		clinicalBonus = cfg.CategoryBonus
	}
	lengthBonus := 0
	if cfg.LengthDivisor > 0 {
		lengthBonus = len(utterance) / cfg.LengthDivisor
		if lengthBonus > cfg.LengthBonusCap {
			lengthBonus = cfg.LengthBonusCap
		}
	}

	return model.PerformanceScore{
		Clinical:        clampScore(score.Clinical + impact.Clinical + clinicalBonus),
		Communication:   clampScore(score.Communication + impact.Communication + lengthBonus),
		Empathy:         clampScore(score.Empathy + impact.Empathy + empathyBonus),
		Professionalism: clampScore(score.Professionalism + impact.Professionalism + professionalismBonus),
		TimeManagement:  clampScore(score.TimeManagement + impact.TimeManagement),
	}
}

// ApplyExpiryPenalty returns the score after the one-time timer
// penalty. The caller is responsible for firing it exactly once per
// expiry (the Timer reports the expiry edge only once).
func ApplyExpiryPenalty(score model.PerformanceScore, cfg ScoreConfig) model.PerformanceScore {
	score.TimeManagement = clampScore(score.TimeManagement - cfg.ExpiryPenalty)
	return score
}

// Tier derives the active difficulty tier from the current score.
func Tier(score model.PerformanceScore, t TierThresholds) model.DifficultyTier {
	sum := score.Clinical + score.Empathy
	switch {
	case sum > t.Hard:
		return model.TierHard
	case sum < t.Easy:
		return model.TierEasy
	default:
		return model.TierModerate
	}
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
