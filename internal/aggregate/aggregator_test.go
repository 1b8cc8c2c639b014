package aggregate

import (
	"testing"
	"time"

	"github.com/ignite/adpulse/internal/classify"
	"github.com/ignite/adpulse/internal/domain"
)

var week = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func insight(goal string, spend float64, actions ...domain.ActionCount) domain.WeeklyInsight {
	return domain.WeeklyInsight{
		AccountID:        "acct-1",
		AdID:             "ad-1",
		WeekStart:        week,
		OptimizationGoal: goal,
		Spend:            spend,
		Actions:          actions,
	}
}

func TestAggregateComputesCPR(t *testing.T) {
	agg := New(classify.NewMapping())

	rows := agg.Aggregate(insight("LEAD_GENERATION", 60.0,
		domain.ActionCount{ActionType: "lead", Count: 12},
	), time.Now())

	var leadRow *domain.WeeklyResult
	for i := range rows {
		if rows[i].ResultFamily == domain.FamilyLeadForm {
			leadRow = &rows[i]
		}
	}
	if leadRow == nil {
		t.Fatal("no lead_form row produced")
	}
	if leadRow.ResultCount != 12 {
		t.Fatalf("result_count = %d, want 12", leadRow.ResultCount)
	}
	if leadRow.CPR == nil || *leadRow.CPR != 5.0 {
		t.Fatalf("cpr = %v, want 5.0", leadRow.CPR)
	}
}

func TestAggregateZeroResultWeekHasNilCPR(t *testing.T) {
	agg := New(classify.NewMapping())

	// Spend with no conversions at all: the primary family row must still
	// exist, with count 0 and CPR nil (not zero, not spend).
	rows := agg.Aggregate(insight("LEAD_GENERATION", 50.0), time.Now())

	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.ResultFamily != domain.FamilyLeadForm {
		t.Fatalf("expected primary family lead_form, got %s", r.ResultFamily)
	}
	if r.ResultCount != 0 {
		t.Fatalf("result_count = %d, want 0", r.ResultCount)
	}
	if r.CPR != nil {
		t.Fatalf("cpr must be nil on zero results, got %v", *r.CPR)
	}
	if r.Spend != 50.0 {
		t.Fatalf("spend = %v, want 50.0", r.Spend)
	}
}

func TestAggregateDeterministicOrdering(t *testing.T) {
	agg := New(classify.NewMapping())
	in := insight("LEAD_GENERATION", 100.0,
		domain.ActionCount{ActionType: "link_click", Count: 80},
		domain.ActionCount{ActionType: "lead", Count: 4},
		domain.ActionCount{ActionType: "purchase", Count: 1},
	)

	now := time.Now()
	first := agg.Aggregate(in, now)
	second := agg.Aggregate(in, now)

	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.ResultFamily != b.ResultFamily || a.ResultCount != b.ResultCount || a.Spend != b.Spend {
			t.Fatalf("row %d differs between runs: %+v vs %+v", i, a, b)
		}
		if (a.CPR == nil) != (b.CPR == nil) || (a.CPR != nil && *a.CPR != *b.CPR) {
			t.Fatalf("row %d cpr differs between runs", i)
		}
	}
}
