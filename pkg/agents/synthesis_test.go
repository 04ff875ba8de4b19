package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mosaic/pkg/agent"
	"mosaic/pkg/mail"
	"mosaic/pkg/provider"
	"mosaic/pkg/store"
	"mosaic/pkg/store/memory"
)

// scriptedCycle answers each pipeline stage by prompt shape.
func scriptedCycle(urgentIDs ...string) func(prompt string, tier provider.Tier) (string, error) {
	extract := extractionResponder(urgentIDs...)
	return func(prompt string, tier provider.Tier) (string, error) {
		switch {
		case strings.Contains(prompt, "mail batch"):
			return extract(prompt, tier)
		case strings.Contains(prompt, "one-sentence summary of the relationship"):
			return "Colleague with frequent contact about ongoing work.", nil
		case strings.Contains(prompt, "group them into coherent themes"):
			return `{"themes": {"Work": {"description": "work", "record_indices": [0, 1, 2, 3, 4, 5]}}}`, nil
		case strings.Contains(prompt, "themed groups to identify priorities"):
			return `{
				"priorities": {"urgent": ["Respond to m1 today", "Respond to m4 today"], "important": ["Review subject 2"], "deferred": []},
				"social_notes": {"replies_needed": ["Reply to Sender 1"], "relationship_nudges": []},
				"deadlines": [],
				"focus_recommendation": "Respond to m1"
			}`, nil
		case strings.Contains(prompt, "strategic advisor"):
			return "### 🎯 Top 3 Priorities for Now\nRespond to m1.", nil
		default:
			return "", errors.New("unexpected prompt")
		}
	}
}

func newCycleAgent(completer provider.Completer, st store.Store, mailbox mail.Provider) *SynthesisAgent {
	mailAgent := NewMailAgent(completer, mailbox, nil)
	goalAgent := NewGoalAgent(st, nil)
	return NewSynthesisAgent(completer, st, mailAgent, goalAgent, nil)
}

func startCycle(userID string) agent.Context {
	return agent.Context{UserID: userID, Metadata: map[string]any{
		"action":  ActionStartCycle,
		"user_id": userID,
	}}
}

func TestSynthesisCycleEmitsBriefingAndOneAlert(t *testing.T) {
	st := memory.New()
	completer := &fakeCompleter{respond: scriptedCycle("m1", "m4")}
	a := newCycleAgent(completer, st, fixtureMailbox(6))

	result := a.Process(context.Background(), startCycle("u1"))
	if !result.Success {
		t.Fatalf("result = %#v", result)
	}
	if result.Data["insights_generated"] != 2 {
		t.Fatalf("insights_generated = %v", result.Data["insights_generated"])
	}

	insights, err := st.Insights("u1", true, 0)
	if err != nil {
		t.Fatalf("Insights error: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("stored insights = %d, want 2", len(insights))
	}

	var briefing, alert *store.Insight
	for i := range insights {
		switch insights[i].Kind {
		case store.InsightDailyBriefing:
			briefing = &insights[i]
		case store.InsightPriorityAlert:
			alert = &insights[i]
		}
	}
	if briefing == nil || alert == nil {
		t.Fatalf("insights = %#v", insights)
	}
	if briefing.Priority != "high" {
		t.Fatalf("briefing priority = %q, want high with urgent items", briefing.Priority)
	}
	if briefing.Metadata["urgent_count"] != "2" {
		t.Fatalf("metadata = %#v", briefing.Metadata)
	}
	if !strings.Contains(alert.Content, "Respond to m1 today") {
		t.Fatalf("alert content = %q", alert.Content)
	}

	// The watermark advanced.
	if _, ok, _ := st.LastSync("u1", mailSource); !ok {
		t.Fatal("watermark not set after cycle")
	}
}

func TestSynthesisEmptyCycleComposesQuietBriefing(t *testing.T) {
	st := memory.New()
	completer := &fakeCompleter{}
	a := newCycleAgent(completer, st, mail.Null{})

	result := a.Process(context.Background(), startCycle("u1"))
	if !result.Success {
		t.Fatalf("result = %#v", result)
	}

	insights, _ := st.Insights("u1", true, 0)
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want the guaranteed briefing", len(insights))
	}
	briefing := insights[0]
	if briefing.Kind != store.InsightDailyBriefing {
		t.Fatalf("kind = %q", briefing.Kind)
	}
	if strings.Count(briefing.Content, "None found") != 3 {
		t.Fatalf("briefing should state None found per section:\n%s", briefing.Content)
	}

	// The quiet briefing is composed locally.
	if completer.callCount() != 0 {
		t.Fatalf("completion calls = %d, want 0", completer.callCount())
	}
	if _, ok, _ := st.LastSync("u1", mailSource); !ok {
		t.Fatal("watermark must advance even on an empty cycle")
	}
}

// alertRejectingStore fails writes for priority alerts only.
type alertRejectingStore struct {
	*memory.Store
}

func (s *alertRejectingStore) AddInsight(insight store.Insight) error {
	if insight.Kind == store.InsightPriorityAlert {
		return errors.New("disk full")
	}
	return s.Store.AddInsight(insight)
}

func TestSynthesisStoreFailureDropsOnlyFailingInsight(t *testing.T) {
	st := &alertRejectingStore{Store: memory.New()}
	completer := &fakeCompleter{respond: scriptedCycle("m1")}
	a := newCycleAgent(completer, st, fixtureMailbox(3))

	result := a.Process(context.Background(), startCycle("u1"))
	if !result.Success {
		t.Fatalf("a failed insight write must not fail the cycle: %#v", result)
	}
	if result.Data["insights_generated"] != 1 {
		t.Fatalf("insights_generated = %v, want 1", result.Data["insights_generated"])
	}

	insights, _ := st.Insights("u1", true, 0)
	if len(insights) != 1 || insights[0].Kind != store.InsightDailyBriefing {
		t.Fatalf("insights = %#v", insights)
	}
}

func TestSynthesisBriefingFailureDegradesToStatusUpdate(t *testing.T) {
	st := memory.New()
	base := scriptedCycle()
	completer := &fakeCompleter{respond: func(prompt string, tier provider.Tier) (string, error) {
		if strings.Contains(prompt, "strategic advisor") {
			return "", errors.New("model overloaded")
		}
		return base(prompt, tier)
	}}
	a := newCycleAgent(completer, st, fixtureMailbox(2))

	result := a.Process(context.Background(), startCycle("u1"))
	if !result.Success {
		t.Fatalf("result = %#v", result)
	}

	insights, _ := st.Insights("u1", true, 0)
	if len(insights) != 1 || insights[0].Kind != store.InsightStatusUpdate {
		t.Fatalf("insights = %#v, want one status_update", insights)
	}
}

func TestSynthesisUpdatesSocialGraph(t *testing.T) {
	st := memory.New()
	completer := &fakeCompleter{respond: scriptedCycle("m1")}
	a := newCycleAgent(completer, st, fixtureMailbox(3))

	if result := a.Process(context.Background(), startCycle("u1")); !result.Success {
		t.Fatalf("result = %#v", result)
	}

	contacts, err := st.Contacts("u1")
	if err != nil {
		t.Fatalf("Contacts error: %v", err)
	}
	if len(contacts) != 3 {
		t.Fatalf("contacts = %d, want one per sender", len(contacts))
	}

	sender1, err := st.Contact("u1", "sender1@example.com")
	if err != nil {
		t.Fatalf("Contact error: %v", err)
	}
	if sender1.InteractionCount != 1 || len(sender1.InteractionHistory) != 1 {
		t.Fatalf("contact = %#v", sender1)
	}
	if sender1.PendingReplies != 1 {
		t.Fatalf("pending replies = %d, want 1 (m1 needs a reply)", sender1.PendingReplies)
	}
	if sender1.RelationshipSummary == "" {
		t.Fatal("relationship summary missing")
	}

	sender2, _ := st.Contact("u1", "sender2@example.com")
	if sender2.PendingReplies != 0 {
		t.Fatalf("sender2 pending = %d, want 0", sender2.PendingReplies)
	}
}

func TestBriefingGoalContextCappedAtThree(t *testing.T) {
	st := memory.New()
	completer := &fakeCompleter{respond: scriptedCycle("m1")}
	a := newCycleAgent(completer, st, fixtureMailbox(3))

	titles := []string{"Alpha launch", "Beta rollout", "Gamma review", "Delta cleanup", "Epsilon refresh"}
	for i, title := range titles {
		st.AddGoal(store.Goal{
			UserID:   "u1",
			Title:    title,
			Horizon:  store.HorizonShortTerm,
			Priority: store.GoalPriorityMax - i,
		})
	}

	if result := a.Process(context.Background(), startCycle("u1")); !result.Success {
		t.Fatalf("result = %#v", result)
	}

	prompt := completer.promptMatching("strategic advisor")
	if prompt == "" {
		t.Fatal("briefing prompt not issued")
	}
	for _, title := range titles[:3] {
		if !strings.Contains(prompt, title) {
			t.Fatalf("prompt missing top-priority goal %q", title)
		}
	}
	for _, title := range titles[3:] {
		if strings.Contains(prompt, title) {
			t.Fatalf("prompt should not carry goal %q", title)
		}
	}

	insights, _ := st.Insights("u1", true, 0)
	var briefing *store.Insight
	for i := range insights {
		if insights[i].Kind == store.InsightDailyBriefing {
			briefing = &insights[i]
		}
	}
	if briefing == nil {
		t.Fatalf("insights = %#v", insights)
	}
	if briefing.Metadata["active_goals"] != "3" {
		t.Fatalf("active_goals = %q, want 3", briefing.Metadata["active_goals"])
	}
}

func TestSynthesisUnknownAction(t *testing.T) {
	a := newCycleAgent(&fakeCompleter{}, memory.New(), mail.Null{})

	ac := agent.Context{UserID: "u1", Metadata: map[string]any{"action": "DANCE"}}
	if result := a.Process(context.Background(), ac); result.Success {
		t.Fatal("unknown action must fail")
	}
}

func TestSynthesisRequiresUser(t *testing.T) {
	a := newCycleAgent(&fakeCompleter{}, memory.New(), mail.Null{})

	ac := agent.Context{Metadata: map[string]any{"action": ActionStartCycle}}
	if result := a.Process(context.Background(), ac); result.Success {
		t.Fatal("missing user must fail")
	}
}
