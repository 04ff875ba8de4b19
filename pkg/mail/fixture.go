package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// FixtureRecord is one mailbox entry in a fixture file. Date is
// RFC 3339.
type FixtureRecord struct {
	ID      string   `json:"id"`
	UserID  string   `json:"user_id"`
	Subject string   `json:"subject"`
	Sender  string   `json:"sender"`
	Date    string   `json:"date"`
	Snippet string   `json:"snippet,omitempty"`
	Body    string   `json:"body,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// Fixture serves mailbox reads from a static JSON file. It backs local
// runs and tests where no live mailbox is wired.
type Fixture struct {
	records []FixtureRecord
}

var _ Provider = (*Fixture)(nil)

// OpenFixture loads a fixture file containing a JSON array of records.
func OpenFixture(path string) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mail fixture: %w", err)
	}

	var records []FixtureRecord
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("parse mail fixture: %w", err)
	}

	return &Fixture{records: records}, nil
}

// NewFixture builds a fixture provider directly from records.
func NewFixture(records []FixtureRecord) *Fixture {
	return &Fixture{records: append([]FixtureRecord(nil), records...)}
}

// SearchRecords supports a small subset of mailbox query syntax:
// "from:addr", "subject:word" and "label:name" terms plus bare words
// matched against subject and body. All terms must match.
func (f *Fixture) SearchRecords(_ context.Context, userID, query string, maxResults int) []Summary {
	terms := strings.Fields(strings.ToLower(query))

	var results []Summary
	for _, record := range f.records {
		if record.UserID != userID {
			continue
		}
		if !matchesAll(record, terms) {
			continue
		}
		results = append(results, record.summary())
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}

	mailLogger().Debug("Fixture search completed", "user_id", userID, "query", query, "matches", len(results))
	return results
}

func (f *Fixture) RecordDetails(_ context.Context, userID, id string) (Detail, bool) {
	for _, record := range f.records {
		if record.UserID != userID || record.ID != id {
			continue
		}
		return Detail{
			ID:      record.ID,
			Subject: record.Subject,
			Sender:  record.Sender,
			Date:    record.Date,
			Body:    record.Body,
			Labels:  record.Labels,
		}, true
	}
	return Detail{}, false
}

func (f *Fixture) RecordsSince(_ context.Context, userID string, since time.Time, maxResults int) []Summary {
	var results []Summary
	for _, record := range f.records {
		if record.UserID != userID {
			continue
		}
		at, err := time.Parse(time.RFC3339, record.Date)
		if err != nil {
			mailLogger().Warn("Fixture record has unparseable date, skipping", "id", record.ID, "date", record.Date)
			continue
		}
		if !at.After(since) {
			continue
		}
		results = append(results, record.summary())
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Date < results[j].Date })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

func (r FixtureRecord) summary() Summary {
	snippet := r.Snippet
	if snippet == "" {
		snippet = firstChars(r.Body, 120)
	}
	return Summary{
		ID:      r.ID,
		Subject: r.Subject,
		Sender:  r.Sender,
		Date:    r.Date,
		Snippet: snippet,
		Labels:  r.Labels,
	}
}

func matchesAll(record FixtureRecord, terms []string) bool {
	for _, term := range terms {
		if !matchesTerm(record, term) {
			return false
		}
	}
	return true
}

func matchesTerm(record FixtureRecord, term string) bool {
	switch {
	case strings.HasPrefix(term, "from:"):
		return strings.Contains(strings.ToLower(record.Sender), strings.TrimPrefix(term, "from:"))
	case strings.HasPrefix(term, "subject:"):
		return strings.Contains(strings.ToLower(record.Subject), strings.TrimPrefix(term, "subject:"))
	case strings.HasPrefix(term, "label:"):
		want := strings.TrimPrefix(term, "label:")
		for _, label := range record.Labels {
			if strings.EqualFold(label, want) {
				return true
			}
		}
		return false
	default:
		haystack := strings.ToLower(record.Subject + " " + record.Body + " " + record.Snippet)
		return strings.Contains(haystack, term)
	}
}

func firstChars(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
