package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mosaic/pkg/config"
)

// Summary is the lightweight record returned by searches.
type Summary struct {
	ID       string   `json:"id"`
	Subject  string   `json:"subject"`
	Sender   string   `json:"sender"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	ThreadID string   `json:"thread_id,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// Detail is the full record body fetched by id.
type Detail struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Sender      string   `json:"sender"`
	To          string   `json:"to,omitempty"`
	CC          string   `json:"cc,omitempty"`
	Date        string   `json:"date"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	ThreadID    string   `json:"thread_id,omitempty"`
}

// Provider is the mailbox read capability. Implementations degrade to
// empty results rather than failing: a broken mail backend must not
// abort a synthesis cycle, so failures are logged and swallowed here.
type Provider interface {
	SearchRecords(ctx context.Context, userID, query string, maxResults int) []Summary
	RecordDetails(ctx context.Context, userID, id string) (Detail, bool)
	RecordsSince(ctx context.Context, userID string, since time.Time, maxResults int) []Summary
}

// New resolves the configured mail backend.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Mail.Provider {
	case "", "none":
		return Null{}, nil
	case "fixture":
		return OpenFixture(cfg.Mail.FixturePath)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.Mail.Provider)
	}
}

func mailLogger() *slog.Logger {
	return slog.Default().With("component", "mail")
}
