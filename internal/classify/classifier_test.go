package classify

import (
	"testing"

	"github.com/ignite/adpulse/internal/domain"
)

func TestActionFamily(t *testing.T) {
	m := NewMapping()

	cases := map[string]domain.ResultFamily{
		"lead":                             domain.FamilyLeadForm,
		"offsite_conversion.fb_pixel_lead": domain.FamilyWebsiteLead,
		"purchase":                         domain.FamilyPurchase,
		"link_click":                       domain.FamilyClick,
		"onsite_conversion.messaging_conversation_started_7d": domain.FamilyMessages,
		"page_engagement": domain.FamilyOther,
		"":                domain.FamilyOther,
	}

	for action, want := range cases {
		if got := m.ActionFamily(action); got != want {
			t.Errorf("ActionFamily(%q) = %s, want %s", action, got, want)
		}
	}
}

func TestPrimaryFamilyPriorityOrder(t *testing.T) {
	m := NewMapping()

	// LEAD_GENERATION prefers lead_form over messages even when both occur.
	actions := []domain.ActionCount{
		{ActionType: "onsite_conversion.messaging_conversation_started_7d", Count: 3},
		{ActionType: "lead", Count: 7},
		{ActionType: "link_click", Count: 200},
	}
	if got := m.PrimaryFamily("LEAD_GENERATION", actions); got != domain.FamilyLeadForm {
		t.Fatalf("expected lead_form, got %s", got)
	}
}

func TestPrimaryFamilyDefaultWhenNoMatch(t *testing.T) {
	m := NewMapping()

	actions := []domain.ActionCount{{ActionType: "page_engagement", Count: 10}}
	if got := m.PrimaryFamily("CONVERSATIONS", actions); got != domain.FamilyMessages {
		t.Fatalf("expected default messages, got %s", got)
	}
}

func TestPrimaryFamilyUnknownGoalFallsBackToClick(t *testing.T) {
	m := NewMapping()

	// Unknown goal must degrade, never fail the pipeline.
	actions := []domain.ActionCount{{ActionType: "lead", Count: 5}}
	if got := m.PrimaryFamily("SOME_FUTURE_GOAL", actions); got != domain.FamilyClick {
		t.Fatalf("expected click fallback, got %s", got)
	}
}

func TestFamilyCounts(t *testing.T) {
	m := NewMapping()

	counts := m.FamilyCounts([]domain.ActionCount{
		{ActionType: "lead", Count: 4},
		{ActionType: "onsite_conversion.lead_grouped", Count: 2},
		{ActionType: "link_click", Count: 150},
		{ActionType: "page_engagement", Count: 40},
	})

	if counts[domain.FamilyLeadForm] != 6 {
		t.Errorf("lead_form count = %d, want 6", counts[domain.FamilyLeadForm])
	}
	if counts[domain.FamilyClick] != 150 {
		t.Errorf("click count = %d, want 150", counts[domain.FamilyClick])
	}
	if counts[domain.FamilyOther] != 40 {
		t.Errorf("other count = %d, want 40", counts[domain.FamilyOther])
	}
}

func TestRankingScore(t *testing.T) {
	if RankingScore("above_average") != 1.0 {
		t.Error("above_average should score 1.0")
	}
	if RankingScore("below_average_10") != 0.2 {
		t.Error("below_average_10 should score 0.2")
	}
	if RankingScore("garbage") != 0.5 {
		t.Error("unknown label should score neutral 0.5")
	}
}

func TestFingerprint(t *testing.T) {
	cases := map[string]string{
		"Set 1 - kitchen":    "kitchen",
		"Promo [bathroom]":   "bathroom",
		"SimpleAd":           "simplead",
		"Big Sale! Video #2": "big_sale__video__2",
	}
	for name, want := range cases {
		if got := Fingerprint(name); got != want {
			t.Errorf("Fingerprint(%q) = %q, want %q", name, got, want)
		}
	}
}
