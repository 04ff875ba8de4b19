package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"mosaic/pkg/agent"
	"mosaic/pkg/mail"
	"mosaic/pkg/provider"
)

func fixtureMailbox(count int) *mail.Fixture {
	base := time.Now().UTC().Add(-time.Hour)
	records := make([]mail.FixtureRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, mail.FixtureRecord{
			ID:      fmt.Sprintf("m%d", i+1),
			UserID:  "u1",
			Subject: fmt.Sprintf("Subject %d", i+1),
			Sender:  fmt.Sprintf("Sender %d <sender%d@example.com>", i+1, i+1),
			Date:    base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			Body:    fmt.Sprintf("Body of message %d", i+1),
		})
	}
	return mail.NewFixture(records)
}

// extractionResponder answers extraction prompts with a JSON array
// covering every id it finds in the prompt.
func extractionResponder(urgentIDs ...string) func(prompt string, tier provider.Tier) (string, error) {
	urgent := make(map[string]bool, len(urgentIDs))
	for _, id := range urgentIDs {
		urgent[id] = true
	}

	return func(prompt string, _ provider.Tier) (string, error) {
		var entries []string
		for i := 1; i <= 50; i++ {
			id := fmt.Sprintf("m%d", i)
			if !strings.Contains(prompt, `"`+id+`"`) {
				continue
			}
			score := 2
			reply := "false"
			tasks := "[]"
			if urgent[id] {
				score = 5
				reply = "true"
				tasks = `["Respond today"]`
			}
			entries = append(entries, fmt.Sprintf(`{
				"id": %q,
				"summary": "Summary for %s",
				"intent": "Informational",
				"entities": {"people": [], "companies": [], "projects": []},
				"commitments": {"tasks_for_me": %s, "tasks_for_others": [], "deadlines": []},
				"sentiment": "neutral",
				"is_reply_needed": %s,
				"urgency_score": %d
			}`, id, id, tasks, reply, score))
		}
		return "[" + strings.Join(entries, ",") + "]", nil
	}
}

func TestProcessNewRecordsBatchesOfFive(t *testing.T) {
	completer := &fakeCompleter{respond: extractionResponder()}
	a := NewMailAgent(completer, fixtureMailbox(6), nil)

	records := a.ProcessNewRecords(context.Background(), "u1", time.Time{})

	if len(records) != 6 {
		t.Fatalf("records = %d, want 6", len(records))
	}
	// 6 items split into one batch of 5 and one of 1.
	if completer.callCount() != 2 {
		t.Fatalf("completion calls = %d, want 2", completer.callCount())
	}
	for _, record := range records {
		if record.Degraded() {
			t.Fatalf("record %s unexpectedly degraded: %s", record.ID, record.ProcessingError)
		}
		if record.Summary != "Summary for "+record.ID {
			t.Fatalf("record %s summary = %q", record.ID, record.Summary)
		}
	}
}

func TestProcessNewRecordsMissingAnalysisFallsBackPerRecord(t *testing.T) {
	// The model answers for m1 and m3 but forgets m2.
	completer := &fakeCompleter{respond: func(string, provider.Tier) (string, error) {
		return `[
			{"id": "m1", "summary": "one", "intent": "Informational", "sentiment": "neutral", "urgency_score": 2},
			{"id": "m3", "summary": "three", "intent": "Informational", "sentiment": "neutral", "urgency_score": 2}
		]`, nil
	}}
	a := NewMailAgent(completer, fixtureMailbox(3), nil)

	records := a.ProcessNewRecords(context.Background(), "u1", time.Time{})

	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	byID := make(map[string]Record)
	for _, record := range records {
		byID[record.ID] = record
	}
	if !byID["m2"].Degraded() {
		t.Fatal("m2 should be a fallback record")
	}
	if byID["m1"].Degraded() || byID["m3"].Degraded() {
		t.Fatal("only the missing record should degrade")
	}
}

func TestProcessNewRecordsCompletionErrorDegradesWholeBatch(t *testing.T) {
	completer := &fakeCompleter{respond: func(string, provider.Tier) (string, error) {
		return "", errors.New("model unavailable")
	}}
	a := NewMailAgent(completer, fixtureMailbox(4), nil)

	records := a.ProcessNewRecords(context.Background(), "u1", time.Time{})

	if len(records) != 4 {
		t.Fatalf("records = %d, want 4 (one per gathered item)", len(records))
	}
	for _, record := range records {
		if !record.Degraded() {
			t.Fatalf("record %s should be degraded", record.ID)
		}
		if record.UrgencyScore != 1 || record.Sentiment != "neutral" || record.Intent != "Unknown" {
			t.Fatalf("fallback shape wrong: %#v", record)
		}
	}
}

func TestProcessNewRecordsMalformedJSONDegradesBatch(t *testing.T) {
	completer := &fakeCompleter{respond: func(string, provider.Tier) (string, error) {
		return "sorry, I cannot produce JSON today", nil
	}}
	a := NewMailAgent(completer, fixtureMailbox(2), nil)

	records := a.ProcessNewRecords(context.Background(), "u1", time.Time{})

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	for _, record := range records {
		if !record.Degraded() {
			t.Fatal("malformed response must degrade, not drop")
		}
	}
}

func TestProcessNewRecordsEmptyMailbox(t *testing.T) {
	completer := &fakeCompleter{}
	a := NewMailAgent(completer, mail.Null{}, nil)

	if records := a.ProcessNewRecords(context.Background(), "u1", time.Time{}); records != nil {
		t.Fatalf("records = %#v, want nil", records)
	}
	if completer.callCount() != 0 {
		t.Fatal("no completion calls expected for an empty mailbox")
	}
}

func TestMailProcessRequiresUser(t *testing.T) {
	a := NewMailAgent(&fakeCompleter{}, mail.Null{}, nil)

	result := a.Process(context.Background(), agent.Context{Metadata: map[string]any{"task": "daily_summary"}})
	if result.Success {
		t.Fatal("expected failure without user_id")
	}
}

func TestMailProcessUnknownTask(t *testing.T) {
	a := NewMailAgent(&fakeCompleter{}, mail.Null{}, nil)

	ac := agent.Context{UserID: "u1", Metadata: map[string]any{"task": "fold_laundry"}}
	result := a.Process(context.Background(), ac)
	if result.Success || !strings.Contains(result.Err, "fold_laundry") {
		t.Fatalf("result = %#v", result)
	}
}

func TestMailProcessNewRecordsTask(t *testing.T) {
	completer := &fakeCompleter{respond: extractionResponder()}
	a := NewMailAgent(completer, fixtureMailbox(2), nil)

	ac := agent.Context{UserID: "u1", Metadata: map[string]any{
		"task":  "process_new_records",
		"since": "2026-08-26T00:00:00Z",
	}}
	result := a.Process(context.Background(), ac)
	if !result.Success {
		t.Fatalf("result = %#v", result)
	}
	if result.Data["count"] != 2 {
		t.Fatalf("count = %v", result.Data["count"])
	}
}

func TestMailProcessRejectsBadSince(t *testing.T) {
	a := NewMailAgent(&fakeCompleter{}, mail.Null{}, nil)

	ac := agent.Context{UserID: "u1", Metadata: map[string]any{
		"task":  "process_new_records",
		"since": "yesterday-ish",
	}}
	if result := a.Process(context.Background(), ac); result.Success {
		t.Fatal("expected failure for unparseable since")
	}
}

func TestMailDailySummaryUsesTools(t *testing.T) {
	completer := &fakeCompleter{toolRuns: func(string) (provider.ToolRun, error) {
		return provider.ToolRun{FinalText: "Quiet day.", Calls: []provider.ToolCall{{Name: "recent_mail"}}}, nil
	}}
	a := NewMailAgent(completer, fixtureMailbox(1), nil)

	result := a.Process(context.Background(), agent.Context{UserID: "u1", Metadata: map[string]any{"task": "daily_summary"}})
	if !result.Success {
		t.Fatalf("result = %#v", result)
	}
	if result.Data["daily_summary"] != "Quiet day." {
		t.Fatalf("data = %#v", result.Data)
	}
	if result.Data["tool_calls"] != 1 {
		t.Fatalf("tool_calls = %v", result.Data["tool_calls"])
	}
}

func TestMailToolsCarryUserFromMeta(t *testing.T) {
	a := NewMailAgent(&fakeCompleter{}, fixtureMailbox(2), nil)

	tools := a.tools()
	var search provider.Tool
	for _, tool := range tools {
		if tool.Name == "search_mail" {
			search = tool
		}
	}
	if search.Run == nil {
		t.Fatal("search_mail tool missing")
	}

	out, err := search.Run(context.Background(), map[string]any{"query": "subject 1"}, map[string]string{"user_id": "u1"})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	summaries, ok := out.([]mail.Summary)
	if !ok || len(summaries) != 1 {
		t.Fatalf("tool output = %#v", out)
	}

	// A different user sees nothing.
	out, _ = search.Run(context.Background(), map[string]any{"query": "subject 1"}, map[string]string{"user_id": "u2"})
	if summaries, _ := out.([]mail.Summary); len(summaries) != 0 {
		t.Fatalf("cross-user tool output = %#v", out)
	}
}
