package memory

import (
	"errors"
	"testing"
	"time"

	"mosaic/pkg/store"
)

func TestContactIsolation(t *testing.T) {
	s := New()

	contact := store.Contact{UserID: "u1", Email: "a@example.com"}
	contact.RecordInteraction(store.Interaction{Timestamp: time.Now().UTC(), Subject: "hi"})
	if err := s.PutContact(contact); err != nil {
		t.Fatalf("PutContact error: %v", err)
	}

	got, err := s.Contact("u1", "A@Example.com")
	if err != nil {
		t.Fatalf("Contact error: %v", err)
	}

	// Mutating the returned copy must not leak into the store.
	got.InteractionHistory[0].Subject = "tampered"
	again, _ := s.Contact("u1", "a@example.com")
	if again.InteractionHistory[0].Subject != "hi" {
		t.Fatal("store returned a shared slice")
	}
}

func TestInsightStatusMonotonic(t *testing.T) {
	s := New()

	if err := s.AddInsight(store.Insight{ID: "i1", UserID: "u1", Kind: store.InsightDailyBriefing, Title: "t", Content: "c"}); err != nil {
		t.Fatalf("AddInsight error: %v", err)
	}
	if err := s.MarkInsightViewed("i1"); err != nil {
		t.Fatalf("MarkInsightViewed error: %v", err)
	}

	first, _ := s.Insights("u1", false, 0)
	if len(first) != 1 || first[0].ViewedAt.IsZero() {
		t.Fatalf("viewed_at not recorded: %#v", first)
	}

	if err := s.MarkInsightViewed("i1"); err != nil {
		t.Fatalf("second mark should be a no-op, got %v", err)
	}
	if err := s.MarkInsightViewed("nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	all, _ := s.Insights("u1", false, 0)
	if len(all) != 1 || all[0].Status != store.StatusViewed {
		t.Fatalf("insights = %#v", all)
	}
	if !all[0].ViewedAt.Equal(first[0].ViewedAt) {
		t.Fatalf("viewed_at moved from %v to %v", first[0].ViewedAt, all[0].ViewedAt)
	}
}

func TestGoalsFilterByStatus(t *testing.T) {
	s := New()

	if err := s.AddGoal(store.Goal{ID: "g1", UserID: "u1", Title: "a", Horizon: store.HorizonShortTerm}); err != nil {
		t.Fatalf("AddGoal error: %v", err)
	}
	if err := s.AddGoal(store.Goal{ID: "g2", UserID: "u1", Title: "b", Horizon: store.HorizonLongTerm, Status: store.GoalArchived}); err != nil {
		t.Fatalf("AddGoal error: %v", err)
	}

	active, err := s.Goals("u1", store.GoalActive)
	if err != nil {
		t.Fatalf("Goals error: %v", err)
	}
	if len(active) != 1 || active[0].ID != "g1" {
		t.Fatalf("active = %#v", active)
	}

	all, _ := s.Goals("u1", "")
	if len(all) != 2 {
		t.Fatalf("all = %d, want 2", len(all))
	}
}

func TestGoalsSortByPriority(t *testing.T) {
	s := New()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, goal := range []store.Goal{
		{ID: "low", UserID: "u1", Title: "low", Horizon: store.HorizonShortTerm, Priority: 1},
		{ID: "high", UserID: "u1", Title: "high", Horizon: store.HorizonShortTerm, Priority: 5},
		{ID: "mid", UserID: "u1", Title: "mid", Horizon: store.HorizonShortTerm, Priority: 3},
	} {
		goal.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := s.AddGoal(goal); err != nil {
			t.Fatalf("AddGoal error: %v", err)
		}
	}

	goals, err := s.Goals("u1", "")
	if err != nil {
		t.Fatalf("Goals error: %v", err)
	}
	if len(goals) != 3 || goals[0].ID != "high" || goals[1].ID != "mid" || goals[2].ID != "low" {
		t.Fatalf("goals = %#v", goals)
	}
}

func TestGoalMilestonesIsolation(t *testing.T) {
	s := New()

	if err := s.AddGoal(store.Goal{ID: "g1", UserID: "u1", Title: "a", Horizon: store.HorizonShortTerm, Milestones: []string{"one"}}); err != nil {
		t.Fatalf("AddGoal error: %v", err)
	}

	got, err := s.Goal("g1")
	if err != nil {
		t.Fatalf("Goal error: %v", err)
	}
	got.Milestones[0] = "tampered"

	again, _ := s.Goal("g1")
	if again.Milestones[0] != "one" {
		t.Fatal("store returned a shared milestones slice")
	}
}

func TestUpdateGoalPreservesCreatedAt(t *testing.T) {
	s := New()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.AddGoal(store.Goal{ID: "g1", UserID: "u1", Title: "a", Horizon: store.HorizonShortTerm, CreatedAt: created}); err != nil {
		t.Fatalf("AddGoal error: %v", err)
	}

	goal, _ := s.Goal("g1")
	goal.Status = store.GoalCompleted
	goal.CreatedAt = time.Now().UTC()
	if err := s.UpdateGoal(goal); err != nil {
		t.Fatalf("UpdateGoal error: %v", err)
	}

	got, _ := s.Goal("g1")
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %v", got.CreatedAt)
	}
	if got.Status != store.GoalCompleted {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestSyncWatermark(t *testing.T) {
	s := New()

	if _, ok, _ := s.LastSync("u1", "mail"); ok {
		t.Fatal("expected no watermark")
	}
	at := time.Now().UTC()
	if err := s.SetLastSync("u1", "mail", at); err != nil {
		t.Fatalf("SetLastSync error: %v", err)
	}
	got, ok, _ := s.LastSync("u1", "mail")
	if !ok || !got.Equal(at) {
		t.Fatalf("watermark = %v ok=%v", got, ok)
	}
}
