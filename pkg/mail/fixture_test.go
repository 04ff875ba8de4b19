package mail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixtureProvider() *Fixture {
	return NewFixture([]FixtureRecord{
		{
			ID: "m1", UserID: "u1", Subject: "Quarterly report due",
			Sender: "Alice <alice@example.com>", Date: "2026-08-26T09:00:00Z",
			Body: "The quarterly report is due Friday.", Labels: []string{"IMPORTANT"},
		},
		{
			ID: "m2", UserID: "u1", Subject: "Lunch?",
			Sender: "Bob <bob@example.com>", Date: "2026-08-27T08:00:00Z",
			Body: "Want to grab lunch tomorrow?",
		},
		{
			ID: "m3", UserID: "u2", Subject: "Quarterly numbers",
			Sender: "carol@example.com", Date: "2026-08-27T10:00:00Z",
			Body: "Numbers attached.",
		},
	})
}

func TestSearchRecordsFiltersByUser(t *testing.T) {
	f := fixtureProvider()

	got := f.SearchRecords(context.Background(), "u1", "quarterly", 10)
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("results = %#v", got)
	}
}

func TestSearchRecordsQueryTerms(t *testing.T) {
	f := fixtureProvider()

	if got := f.SearchRecords(context.Background(), "u1", "from:bob", 10); len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("from: results = %#v", got)
	}
	if got := f.SearchRecords(context.Background(), "u1", "subject:lunch", 10); len(got) != 1 {
		t.Fatalf("subject: results = %#v", got)
	}
	if got := f.SearchRecords(context.Background(), "u1", "label:important", 10); len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("label: results = %#v", got)
	}
	// All terms must match.
	if got := f.SearchRecords(context.Background(), "u1", "from:bob quarterly", 10); len(got) != 0 {
		t.Fatalf("conjunction results = %#v", got)
	}
}

func TestSearchRecordsMaxResults(t *testing.T) {
	f := fixtureProvider()

	got := f.SearchRecords(context.Background(), "u1", "", 1)
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
}

func TestRecordDetails(t *testing.T) {
	f := fixtureProvider()

	detail, ok := f.RecordDetails(context.Background(), "u1", "m1")
	if !ok {
		t.Fatal("expected record")
	}
	if detail.Body == "" || detail.Subject != "Quarterly report due" {
		t.Fatalf("detail = %#v", detail)
	}

	if _, ok := f.RecordDetails(context.Background(), "u2", "m1"); ok {
		t.Fatal("records must not cross user boundaries")
	}
}

func TestRecordsSince(t *testing.T) {
	f := fixtureProvider()

	since := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	got := f.RecordsSince(context.Background(), "u1", since, 0)
	if len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("results = %#v", got)
	}
}

func TestOpenFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail.json")
	content := `[{"id": "m1", "user_id": "u1", "subject": "hi", "sender": "a@example.com", "date": "2026-08-27T00:00:00Z"}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := OpenFixture(path)
	if err != nil {
		t.Fatalf("OpenFixture error: %v", err)
	}
	if got := f.SearchRecords(context.Background(), "u1", "hi", 10); len(got) != 1 {
		t.Fatalf("results = %#v", got)
	}
}

func TestOpenFixtureMissingFile(t *testing.T) {
	if _, err := OpenFixture(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestNullProvider(t *testing.T) {
	var p Provider = Null{}

	if got := p.SearchRecords(context.Background(), "u1", "anything", 10); got != nil {
		t.Fatalf("results = %#v", got)
	}
	if _, ok := p.RecordDetails(context.Background(), "u1", "m1"); ok {
		t.Fatal("null provider should never find records")
	}
}
