package engine

import (
	"strings"
	"testing"

	"github.com/osceprep/patientsim/internal/model"
)

func TestApplyImpactBasic(t *testing.T) {
	cfg := DefaultScoreConfig()
	score := model.DefaultScore()

	got := ApplyImpact(score, model.Impact{Clinical: 10, Empathy: 2}, "nyeri dada", cfg)
	if got.Clinical != 70 {
		t.Errorf("clinical = %d, want 70", got.Clinical)
	}
	if got.Empathy != 67 {
		t.Errorf("empathy = %d, want 67", got.Empathy)
	}
	if got.Communication != 70 || got.Professionalism != 70 || got.TimeManagement != 80 {
		t.Errorf("untouched dimensions changed: %+v", got)
	}
}

func TestApplyImpactClamping(t *testing.T) {
	cfg := DefaultScoreConfig()

	tests := []struct {
		name   string
		score  model.PerformanceScore
		impact model.Impact
		check  func(t *testing.T, got model.PerformanceScore)
	}{
		{
			"clamp high",
			model.PerformanceScore{Clinical: 98, Communication: 50, Empathy: 50, Professionalism: 50, TimeManagement: 50},
			model.Impact{Clinical: 10},
			func(t *testing.T, got model.PerformanceScore) {
				if got.Clinical != 100 {
					t.Errorf("clinical = %d, want 100", got.Clinical)
				}
			},
		},
		{
			"clamp low",
			model.PerformanceScore{Clinical: 2, Communication: 1, Empathy: 50, Professionalism: 50, TimeManagement: 50},
			model.Impact{Clinical: -10, Communication: -10},
			func(t *testing.T, got model.PerformanceScore) {
				if got.Clinical != 0 || got.Communication != 0 {
					t.Errorf("expected clamping to 0, got %+v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ApplyImpact(tt.score, tt.impact, "ok", cfg))
		})
	}
}

// Every dimension must stay within [0,100] over any utterance sequence.
func TestApplyImpactNeverLeavesRange(t *testing.T) {
	cfg := DefaultScoreConfig()
	score := model.DefaultScore()
	impacts := []model.Impact{
		{Clinical: 50, Empathy: 50},
		{Clinical: 50, Empathy: 50},
		{Communication: -200, Professionalism: -200, TimeManagement: -200},
		{Clinical: -500},
	}
	for _, imp := range impacts {
		score = ApplyImpact(score, imp, "saya mengerti, maaf atas ketidaknyamanannya", cfg)
		for _, dim := range model.Dimensions {
			v, _ := score.Dimension(dim)
			if v < 0 || v > 100 {
				t.Fatalf("dimension %s out of range: %d", dim, v)
			}
		}
	}
}

func TestKeywordCategoryBonuses(t *testing.T) {
	cfg := DefaultScoreConfig()
	base := model.DefaultScore()

	t.Run("empathy term", func(t *testing.T) {
		got := ApplyImpact(base, model.Impact{}, "saya mengerti", cfg)
		if got.Empathy != base.Empathy+cfg.CategoryBonus {
			t.Errorf("empathy = %d, want %d", got.Empathy, base.Empathy+cfg.CategoryBonus)
		}
	})

	t.Run("professionalism term", func(t *testing.T) {
		got := ApplyImpact(base, model.Impact{}, "May I examine you?", cfg)
		if got.Professionalism != base.Professionalism+cfg.CategoryBonus {
			t.Errorf("professionalism = %d, want %d", got.Professionalism, base.Professionalism+cfg.CategoryBonus)
		}
	})

	t.Run("clinical term", func(t *testing.T) {
		got := ApplyImpact(base, model.Impact{}, "let me check your blood pressure", cfg)
		if got.Clinical != base.Clinical+cfg.CategoryBonus {
			t.Errorf("clinical = %d, want %d", got.Clinical, base.Clinical+cfg.CategoryBonus)
		}
	})

	t.Run("length bonus capped", func(t *testing.T) {
		long := strings.Repeat("a detailed and thorough explanation ", 20)
		got := ApplyImpact(base, model.Impact{}, long, cfg)
		if got.Communication != base.Communication+cfg.LengthBonusCap {
			t.Errorf("communication = %d, want %d", got.Communication, base.Communication+cfg.LengthBonusCap)
		}
	})

	// Bonuses stack with the transition impact, not replace it.
	t.Run("bonus stacks with impact", func(t *testing.T) {
		got := ApplyImpact(base, model.Impact{Empathy: 5}, "I understand, that must be hard", cfg)
		if got.Empathy != base.Empathy+5+cfg.CategoryBonus {
			t.Errorf("empathy = %d, want %d", got.Empathy, base.Empathy+5+cfg.CategoryBonus)
		}
	})
}

func TestApplyExpiryPenalty(t *testing.T) {
	cfg := DefaultScoreConfig()

	score := model.DefaultScore()
	got := ApplyExpiryPenalty(score, cfg)
	if got.TimeManagement != 70 {
		t.Errorf("timeManagement = %d, want 70", got.TimeManagement)
	}

	low := model.PerformanceScore{TimeManagement: 4}
	got = ApplyExpiryPenalty(low, cfg)
	if got.TimeManagement != 0 {
		t.Errorf("timeManagement = %d, want 0 (clamped)", got.TimeManagement)
	}
}

func TestTier(t *testing.T) {
	th := TierThresholds{Hard: 160, Easy: 120}

	tests := []struct {
		name     string
		clinical int
		empathy  int
		want     model.DifficultyTier
	}{
		{"easy", 50, 60, model.TierEasy},
		{"lower boundary is moderate", 60, 60, model.TierModerate},
		{"moderate", 80, 70, model.TierModerate},
		{"upper boundary is moderate", 80, 80, model.TierModerate},
		{"hard", 90, 80, model.TierHard},
		{"max", 100, 100, model.TierHard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := model.PerformanceScore{Clinical: tt.clinical, Empathy: tt.empathy}
			if got := Tier(score, th); got != tt.want {
				t.Errorf("Tier(%d+%d) = %q, want %q", tt.clinical, tt.empathy, got, tt.want)
			}
		})
	}
}
